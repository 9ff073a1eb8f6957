package device

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Args is a parsed identity string such as "driver=hackrf,serial=0000437c".
type Args map[string]string

func ParseArgs(identity string) (Args, error) {
	args := make(Args)
	for _, part := range strings.Split(identity, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, fmt.Errorf("malformed identity element %q", part)
		}
		args[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return args, nil
}

func (a Args) Driver() string {
	return a["driver"]
}

func (a Args) Float(key string, def float64) (float64, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func (a Args) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

type OpenFunc func(args Args) (Device, error)

// Opener resolves an identity string to an opened device.
type Opener interface {
	Open(identity string) (Device, error)
}

// Drivers maps driver names to their open functions.
type Drivers map[string]OpenFunc

func (d Drivers) Open(identity string) (Device, error) {
	args, err := ParseArgs(identity)
	if err != nil {
		return nil, err
	}
	name := args.Driver()
	open, ok := d[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownDriver, name, strings.Join(d.Names(), ", "))
	}
	return open(args)
}

func (d Drivers) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
