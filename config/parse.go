// Package config reads pitchfork settings from environment variables into
// tagged structs.
//
// Fields are bound with `env:"NAME[,constraint]"` tags. Supported
// constraints are `required` and `opt[a,b,c]`; a quoted option may contain
// commas: `opt[a,'b,c']`.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
)

// ErrNotStructPtr indicates a type is not a pointer to a struct.
var ErrNotStructPtr = errors.New("must be a pointer to a struct")

var (
	byteSizeType = reflect.TypeOf(ByteSize(0))
	secretType   = reflect.TypeOf(Secret(""))
)

// Parse populates a struct with the values of the tagged environment variables.
// All field errors are reported together.
func Parse(conf interface{}, repository env.Repository) error {
	c := reflect.ValueOf(conf)
	if c.Kind() != reflect.Ptr {
		return ErrNotStructPtr
	}
	c = c.Elem()
	if c.Kind() != reflect.Struct {
		return ErrNotStructPtr
	}
	t := c.Type()

	var errs []error
	for i := 0; i < c.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("env")
		if !ok {
			continue
		}
		key, constraint := parseTag(tag)
		value := repository.Get(key)

		if err := setField(c.Field(i), value, constraint); err != nil {
			errs = append(errs, fmt.Errorf("%s (%s): %w", t.Field(i).Name, key, err))
		}
	}

	return errors.Join(errs...)
}

func parseTag(tag string) (string, string) {
	if !strings.Contains(tag, ",") {
		return tag, ""
	}
	split := strings.SplitN(tag, ",", 2)
	return split[0], split[1]
}

func setField(field reflect.Value, value, constraint string) error {
	if err := validateConstraint(value, constraint); err != nil {
		return err
	}

	if value == "" {
		return nil
	}

	if field.Kind() == reflect.Ptr {
		// Pointers stay nil for unset variables.
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		field = field.Elem()
	}

	switch {
	case field.Type() == byteSizeType:
		size, err := ParseByteSize(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(size))
		return nil
	case field.Type() == secretType:
		field.SetString(value)
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := parseBool(value)
		if err != nil {
			return errors.New("can't convert to bool")
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.New("can't convert to int")
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		field.Set(reflect.ValueOf(splitList(value)))
	default:
		return fmt.Errorf("type is not supported (%s)", field.Kind())
	}
	return nil
}

func validateConstraint(value, constraint string) error {
	switch constraint {
	case "":
		return nil
	case "required":
		if value == "" {
			return errors.New("required variable is not present")
		}
		return nil
	}

	if strings.HasPrefix(constraint, "opt[") && strings.HasSuffix(constraint, "]") {
		for _, option := range parseOptions(constraint) {
			if option == value {
				return nil
			}
		}
		return fmt.Errorf("value is not in value options (%s)", constraint)
	}

	return fmt.Errorf("invalid constraint (%s)", constraint)
}

func parseOptions(constraint string) []string {
	inner := strings.TrimSuffix(strings.TrimPrefix(constraint, "opt["), "]")

	var options []string
	var current strings.Builder
	quoted := false
	for _, r := range inner {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == ',' && !quoted:
			options = append(options, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(options, current.String())
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(value)
}

// splitList splits a `|` or `,` separated list, dropping empty items.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.FieldsFunc(value, func(r rune) bool { return r == '|' || r == ',' }) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
