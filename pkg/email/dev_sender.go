package email

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrymomot/prokit/pkg/sanitizer"
)

// DevSender writes each message as an HTML file under dir.
type DevSender struct {
	dir string
	now func() time.Time
}

func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir, now: time.Now}
}

func (d *DevSender) SendEmail(_ context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}

	id := params.Tag
	if id == "" {
		id = params.Subject
	}
	name := fmt.Sprintf("%s_%s.html", d.now().Format("2006_01_02_150405"), sanitizer.SanitizeFilename(id))
	body := fmt.Sprintf("<!-- to: %s | subject: %s -->\n%s", params.SendTo, params.Subject, params.BodyHTML)

	if err := os.WriteFile(filepath.Join(d.dir, name), []byte(body), 0o644); err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return nil
}
