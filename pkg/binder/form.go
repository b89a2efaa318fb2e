package binder

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

// DefaultMaxMemory is the default maximum memory used for parsing multipart forms (10MB).
const DefaultMaxMemory = 10 << 20

var fileHeaderType = reflect.TypeOf((*multipart.FileHeader)(nil))

// Form binds urlencoded and multipart bodies. Fields tagged `form:"name"`
// receive values (string, bool, ints); fields of type *multipart.FileHeader
// tagged `file:"name"` receive the first uploaded file.
func Form(maxMemory int64) func(r *http.Request, v any) error {
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemory
	}
	return func(r *http.Request, v any) error {
		var (
			values map[string][]string
			files  map[string][]*multipart.FileHeader
		)
		switch mediaType(r) {
		case "application/x-www-form-urlencoded":
			if err := r.ParseForm(); err != nil {
				return errors.Join(ErrFailedToParseForm, err)
			}
			values = r.PostForm
		case "multipart/form-data":
			if err := r.ParseMultipartForm(maxMemory); err != nil {
				return errors.Join(ErrFailedToParseForm, err)
			}
			values = r.MultipartForm.Value
			files = r.MultipartForm.File
		default:
			return ErrBinderNotApplicable
		}
		return bind(v, values, files)
	}
}

// Query binds URL query parameters using `query:"name"` tags.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindTag(v, "query", r.URL.Query(), nil)
	}
}

func bind(v any, values map[string][]string, files map[string][]*multipart.FileHeader) error {
	return bindTag(v, "form", values, files)
}

func bindTag(v any, tag string, values map[string][]string, files map[string][]*multipart.FileHeader) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrInvalidTarget
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := range rt.NumField() {
		sf := rt.Field(i)
		field := rv.Field(i)
		if !field.CanSet() {
			continue
		}

		if name := sf.Tag.Get("file"); name != "" && name != "-" && sf.Type == fileHeaderType {
			if fh := files[name]; len(fh) > 0 {
				fh[0].Filename = filepath.Base(fh[0].Filename)
				field.Set(reflect.ValueOf(fh[0]))
			}
			continue
		}

		name, _, _ := strings.Cut(sf.Tag.Get(tag), ",")
		if name == "" || name == "-" {
			continue
		}
		vals := values[name]
		if len(vals) == 0 {
			continue
		}
		if err := setValue(field, vals[0]); err != nil {
			return fmt.Errorf("%w: field %s: %v", ErrFailedToParseForm, name, err)
		}
	}
	return nil
}

func setValue(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		// Checkboxes submit "on".
		field.SetBool(raw == "on" || raw == "true" || raw == "1")
	case reflect.Int, reflect.Int32, reflect.Int64:
		if raw == "" {
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}
