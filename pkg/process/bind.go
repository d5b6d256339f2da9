// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/pflag"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Bind registers a flag for every field of the struct pointed to by config.
// Flag names are the hyphenated field names, nested structs add a dotted
// prefix. The help and default struct tags give the usage and the default
// value.
//
// Bind panics when config is not a struct pointer or a default does not
// parse, both being programming errors.
func Bind(flags *pflag.FlagSet, config interface{}) {
	value := reflect.ValueOf(config)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("invalid config type %T", config))
	}
	bindStruct(flags, "", value.Elem())
}

func bindStruct(flags *pflag.FlagSet, prefix string, value reflect.Value) {
	for i := 0; i < value.NumField(); i++ {
		field := value.Type().Field(i)
		if !field.IsExported() {
			continue
		}
		name := prefix + hyphenate(field.Name)
		fieldValue := value.Field(i)

		if field.Type.Kind() == reflect.Struct {
			bindStruct(flags, name+".", fieldValue)
			continue
		}

		help := field.Tag.Get("help")
		def := field.Tag.Get("default")
		ptr := fieldValue.Addr().Interface()

		switch field.Type {
		case durationType:
			flags.DurationVar(ptr.(*time.Duration), name, mustParse(name, def, parseDuration), help)
			continue
		}

		switch field.Type.Kind() {
		case reflect.String:
			flags.StringVar(ptr.(*string), name, def, help)
		case reflect.Bool:
			flags.BoolVar(ptr.(*bool), name, mustParse(name, def, parseBool), help)
		case reflect.Int:
			flags.IntVar(ptr.(*int), name, mustParse(name, def, strconv.Atoi), help)
		case reflect.Int64:
			flags.Int64Var(ptr.(*int64), name, mustParse(name, def, parseInt64), help)
		case reflect.Float64:
			flags.Float64Var(ptr.(*float64), name, mustParse(name, def, parseFloat), help)
		default:
			panic(fmt.Sprintf("field %s: unsupported type %s", name, field.Type))
		}
	}
}

func mustParse[T any](name, def string, parse func(string) (T, error)) T {
	var zero T
	if def == "" {
		return zero
	}
	v, err := parse(def)
	if err != nil {
		panic(fmt.Sprintf("field %s: invalid default %q: %v", name, def, err))
	}
	return v
}

func parseDuration(s string) (time.Duration, error) { return time.ParseDuration(s) }
func parseBool(s string) (bool, error)              { return strconv.ParseBool(s) }
func parseInt64(s string) (int64, error)            { return strconv.ParseInt(s, 10, 64) }
func parseFloat(s string) (float64, error)          { return strconv.ParseFloat(s, 64) }

// hyphenate converts a Go field name into a flag name, e.g.
// PurgeOlderThanDays to purge-older-than-days and DeviceID to device-id.
func hyphenate(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
