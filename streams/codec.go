package streams

import (
	"bytes"
	"encoding"
	"encoding/csv"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Codec serializes a batch of rows into a data part payload.
type Codec[T any] interface {
	Encode(rows []T) ([]byte, error)
}

// CSVRecord is implemented by row types that render their own CSV fields.
type CSVRecord interface {
	CSVRecord() ([]string, error)
}

// CSVCodec writes rows as headerless CSV, which is what the Streams API
// expects for data parts.
//
// Supported row types are []string, CSVRecord implementers and structs (or
// pointers to structs) whose exported fields are rendered in declaration
// order. Fields tagged `csv:"-"` are skipped.
type CSVCodec[T any] struct {
	// Comma is the field delimiter, ',' when zero.
	Comma rune
}

// Encode ...
func (c CSVCodec[T]) Encode(rows []T) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if c.Comma != 0 {
		w.Comma = c.Comma
	}

	for i, row := range rows {
		fields, err := recordFields(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := w.Write(fields); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

var timeType = reflect.TypeOf(time.Time{})

func recordFields(row interface{}) ([]string, error) {
	switch r := row.(type) {
	case []string:
		return r, nil
	case CSVRecord:
		return r.CSVRecord()
	}

	v := reflect.ValueOf(row)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("nil row")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("unsupported row type: %T", row)
	}

	t := v.Type()
	fields := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("csv") == "-" {
			continue
		}
		s, err := formatValue(v.Field(i))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		fields = append(fields, s)
	}

	return fields, nil
}

func formatValue(v reflect.Value) (string, error) {
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", nil
		}
		return formatValue(v.Elem())
	}

	if v.Type() == timeType {
		return v.Interface().(time.Time).Format(time.RFC3339), nil
	}
	if v.CanInterface() {
		if m, ok := v.Interface().(encoding.TextMarshaler); ok {
			text, err := m.MarshalText()
			return string(text), err
		}
	}

	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported kind: %s", v.Kind())
	}
}
