// Package config loads, validates and hot-reloads the engine's YAML
// configuration (spec §6), generalizing the teacher's reflection-based
// setDefaultValues/validate helpers (httptines.go) into a reusable pair
// any config-bearing struct in the engine can call, not just Worker.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ApplyDefaults walks obj's fields and fills any zero-valued field that
// carries a "default" struct tag, the same rule the teacher's
// setDefaultValues applies to Worker.
func ApplyDefaults(obj interface{}) {
	tof := reflect.TypeOf(obj).Elem()
	vof := reflect.ValueOf(obj).Elem()

	for i := 0; i < vof.NumField(); i++ {
		vf := vof.Field(i)
		if !vf.CanSet() {
			continue
		}
		tag := tof.Field(i).Tag.Get("default")

		if tag == "" || !vf.IsZero() {
			if vf.Kind() == reflect.Struct {
				if vf.CanAddr() {
					ApplyDefaults(vf.Addr().Interface())
				}
			}
			continue
		}

		switch vf.Kind() {
		case reflect.String:
			vf.SetString(tag)
		case reflect.Int, reflect.Int64:
			if iv, err := strconv.ParseInt(tag, 10, 64); err == nil {
				vf.SetInt(iv)
			}
		case reflect.Float64:
			if fv, err := strconv.ParseFloat(tag, 64); err == nil {
				vf.SetFloat(fv)
			}
		case reflect.Bool:
			if bv, err := strconv.ParseBool(tag); err == nil {
				vf.SetBool(bv)
			}
		case reflect.Slice:
			if vf.Type().Elem().Kind() == reflect.String {
				vf.Set(reflect.ValueOf(strings.Split(tag, ",")))
			}
		}
	}
}

// Validate walks obj's fields and returns an error naming the first
// required-but-zero field it finds, generalizing the teacher's validate
// helper (which printed and os.Exit(0)'d) into a normal error return so
// the CLI entrypoint can map it to spec §7's exit code 1.
func Validate(obj interface{}) error {
	tof := reflect.TypeOf(obj).Elem()
	vof := reflect.ValueOf(obj).Elem()

	for i := 0; i < vof.NumField(); i++ {
		tf := tof.Field(i)
		vf := vof.Field(i)

		if vf.Kind() == reflect.Struct && vf.CanAddr() {
			if err := Validate(vf.Addr().Interface()); err != nil {
				return err
			}
		}

		tag := tf.Tag.Get("validate")
		if tag == "" {
			continue
		}
		if strings.Contains(tag, "required") && vf.IsZero() {
			return fmt.Errorf("field %q is required", tf.Name)
		}
	}
	return nil
}
