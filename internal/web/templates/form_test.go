package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func render(t *testing.T, data FormData) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Form(data).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestForm_Fields(t *testing.T) {
	html := render(t, FormData{MaxUploadMB: 10, MailConfigured: true})

	for _, want := range []string{
		`action="/calculate"`,
		`enctype="multipart/form-data"`,
		`name="file"`,
		`name="weights"`,
		`name="impacts"`,
		`name="email"`,
		"Up to 10 MB",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("form missing %q", want)
		}
	}
	if strings.Contains(html, `class="notice"`) {
		t.Error("notice shown although mail is configured")
	}
}

func TestForm_NoticeWithoutMail(t *testing.T) {
	if html := render(t, FormData{MaxUploadMB: 1}); !strings.Contains(html, "not configured") {
		t.Error("expected mail notice")
	}
}

func TestNotice_Escapes(t *testing.T) {
	var buf bytes.Buffer
	if err := Notice(`<script>x</script>`).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "<script>") {
		t.Errorf("notice not escaped: %s", buf.String())
	}
}
