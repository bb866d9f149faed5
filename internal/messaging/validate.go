package messaging

import (
	"errors"
	"mime"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/umar/roomchat/internal/apperr"
	"github.com/umar/roomchat/internal/models"
)

const defaultMimeType = "application/octet-stream"

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check runs the struct validator and reports the first failing field as a
// validation error.
func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return apperr.Validation("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return apperr.Validation("%s failed %s", fe.Namespace(), fe.Tag())
	}
	return apperr.Validation("invalid input: %v", err)
}

// normalizeMimeType canonicalises a declared MIME type, falling back to the
// file extension and then to application/octet-stream.
func normalizeMimeType(declared, name string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "" {
		declared = mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	}
	if declared == "" {
		return defaultMimeType
	}
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		declared = mt
	}
	if known := mimetype.Lookup(declared); known != nil {
		declared, _, _ = strings.Cut(known.String(), ";")
	}
	return declared
}

// inferMessageType picks the message type from the first attachment's MIME
// family when the sender did not specify one.
func inferMessageType(atts []models.Attachment) models.MessageType {
	if len(atts) == 0 {
		return models.MessageText
	}
	family, _, _ := strings.Cut(atts[0].MimeType, "/")
	switch family {
	case "image":
		return models.MessageImage
	case "video":
		return models.MessageVideo
	case "audio":
		return models.MessageVoice
	}
	return models.MessageFile
}
