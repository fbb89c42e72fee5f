// Package templates holds the HTML components served by the web package.
// Components are written in .templ files; run `templ generate` after editing.
package templates

//go:generate templ generate

// FormData parameterises the upload page.
type FormData struct {
	MaxUploadMB    int64
	MailConfigured bool
}
