/*
 Copyright 2013-2014 Canonical Ltd.

 This program is free software: you can redistribute it and/or modify it
 under the terms of the GNU General Public License version 3, as published
 by the Free Software Foundation.

 This program is distributed in the hope that it will be useful, but
 WITHOUT ANY WARRANTY; without even the implied warranties of
 MERCHANTABILITY, SATISFACTORY QUALITY, or FITNESS FOR A PARTICULAR
 PURPOSE.  See the GNU General Public License for more details.

 You should have received a copy of the GNU General Public License along
 with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package config has helpers to parse and use JSON based configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

func checkDestConfig(name string, destConfig interface{}) (reflect.Value, error) {
	destValue := reflect.ValueOf(destConfig)
	if destValue.Kind() != reflect.Ptr || destValue.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%s not *struct", name)
	}
	return destValue, nil
}

type destField struct {
	fld  reflect.StructField
	dest interface{}
}

func (f destField) configName() string {
	fld := f.fld
	configName := strings.Split(fld.Tag.Get("json"), ",")[0]
	if configName == "" {
		configName = strings.ToLower(fld.Name[:1]) + fld.Name[1:]
	}
	return configName
}

// traverseStruct lists the exported fields of destStruct, descending
// into embedded structs.
func traverseStruct(destStruct reflect.Value) []destField {
	var fields []destField
	structType := destStruct.Type()
	for i := 0; i < structType.NumField(); i++ {
		fld := structType.Field(i)
		val := destStruct.Field(i)
		if fld.PkgPath != "" { // unexported
			continue
		}
		if fld.Anonymous {
			fields = append(fields, traverseStruct(val)...)
			continue
		}
		fields = append(fields, destField{
			fld:  fld,
			dest: val.Addr().Interface(),
		})
	}
	return fields
}

func fillDestConfig(destValue reflect.Value, p map[string]json.RawMessage) error {
	destStruct := destValue.Elem()
	for _, destField := range traverseStruct(destStruct) {
		configName := destField.configName()
		raw, found := p[configName]
		if !found { // all fields are mandatory
			return fmt.Errorf("missing %s", configName)
		}
		err := json.Unmarshal([]byte(raw), destField.dest)
		if err != nil {
			return fmt.Errorf("%s: %v", configName, err)
		}
	}
	return nil
}

// ReadConfig reads a JSON configuration into destConfig which should
// be a pointer to a structure. It does some more configuration
// specific error checking than plain JSON decoding, and mentions
// fields in errors. Configuration fields in the JSON object are
// expected to start with lower case.
func ReadConfig(r io.Reader, destConfig interface{}) error {
	destValue, err := checkDestConfig("destConfig", destConfig)
	if err != nil {
		return err
	}
	// do the parsing in two phases for better error handling
	var p1 map[string]json.RawMessage
	err = json.NewDecoder(r).Decode(&p1)
	if err != nil {
		return err
	}
	return fillDestConfig(destValue, p1)
}

// ReadFiles reads configuration from a set of files, later files
// overriding keys from earlier ones. Missing files are skipped but at
// least one must exist.
func ReadFiles(destConfig interface{}, cfgFpaths ...string) error {
	return readFiles(destConfig, nil, cfgFpaths)
}

// ReadFilesDefaults is like ReadFiles but starts from defaults, so
// files may set only some keys, or be missing altogether.
func ReadFilesDefaults(destConfig interface{}, defaults map[string]interface{}, cfgFpaths ...string) error {
	if defaults == nil {
		defaults = map[string]interface{}{}
	}
	return readFiles(destConfig, defaults, cfgFpaths)
}

func readFiles(destConfig interface{}, defaults map[string]interface{}, cfgFpaths []string) error {
	destValue, err := checkDestConfig("destConfig", destConfig)
	if err != nil {
		return err
	}
	p1 := make(map[string]json.RawMessage)
	for k, v := range defaults {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("default %s: %v", k, err)
		}
		p1[k] = raw
	}
	readOne := defaults != nil
	for _, cfgPath := range cfgFpaths {
		if _, err := os.Stat(cfgPath); err != nil {
			continue
		}
		one, err := readRaw(cfgPath)
		if err != nil {
			return fmt.Errorf("%s: %v", cfgPath, err)
		}
		for k, v := range one {
			p1[k] = v
		}
		readOne = true
	}
	if !readOne {
		return errors.New("no config to read")
	}
	return fillDestConfig(destValue, p1)
}

func readRaw(cfgPath string) (map[string]json.RawMessage, error) {
	r, err := os.Open(cfgPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var p map[string]json.RawMessage
	err = json.NewDecoder(r).Decode(&p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ConfigTimeDuration can hold a time.Duration in a configuration struct,
// that is parsed from a string as supported by time.ParseDuration.
type ConfigTimeDuration struct {
	time.Duration
}

func (ctd *ConfigTimeDuration) UnmarshalJSON(b []byte) error {
	var enc string
	err := json.Unmarshal(b, &enc)
	if err != nil {
		return err
	}
	v, err := time.ParseDuration(enc)
	if err != nil {
		return err
	}
	*ctd = ConfigTimeDuration{v}
	return nil
}

// TimeDuration returns the time.Duration held in ctd.
func (ctd ConfigTimeDuration) TimeDuration() time.Duration {
	return ctd.Duration
}

// ConfigByteSize can hold a byte count in a configuration struct. It
// is parsed from a JSON number or from a string with an optional
// KiB/MiB/GiB suffix. A negative value means no limit.
type ConfigByteSize int64

var byteSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"B", 1},
}

func (cbs *ConfigByteSize) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*cbs = ConfigByteSize(n)
		return nil
	}
	var enc string
	err := json.Unmarshal(b, &enc)
	if err != nil {
		return errors.New("byte size should be a number or a string")
	}
	enc = strings.TrimSpace(enc)
	mult := int64(1)
	for _, s := range byteSuffixes {
		if strings.HasSuffix(enc, s.suffix) {
			enc = strings.TrimSpace(strings.TrimSuffix(enc, s.suffix))
			mult = s.mult
			break
		}
	}
	n, err = strconv.ParseInt(enc, 10, 64)
	if err != nil {
		return fmt.Errorf("bad byte size %q", enc)
	}
	*cbs = ConfigByteSize(n * mult)
	return nil
}

// ByteSize returns the byte count held in cbs.
func (cbs ConfigByteSize) ByteSize() int64 {
	return int64(cbs)
}

// LoadFile reads a file possibly relative to a base dir.
func LoadFile(p, baseDir string) ([]byte, error) {
	if p == "" {
		return nil, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return os.ReadFile(p)
}
