package classify

import (
	"fmt"
	"strings"
)

// Scheme is a policy for bucketing sections into size accounting groups.
type Scheme int

const (
	Berkeley Scheme = iota
	GNU
	SysV
	Custom
)

// Schemes lists every scheme in the order used by "all".
var Schemes = []Scheme{Berkeley, GNU, SysV, Custom}

func (s Scheme) String() string {
	switch s {
	case Berkeley:
		return "berkeley"
	case GNU:
		return "gnu"
	case SysV:
		return "sysv"
	case Custom:
		return "custom"
	}
	return fmt.Sprintf("scheme(%d)", int(s))
}

func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "berkeley":
		return Berkeley, nil
	case "gnu":
		return GNU, nil
	case "sysv":
		return SysV, nil
	case "custom":
		return Custom, nil
	}
	return 0, fmt.Errorf("unknown scheme %q, expected one of berkeley, gnu, sysv, custom, all", s)
}

// ParseSchemes parses a comma separated list. "all" expands to every scheme.
func ParseSchemes(s string) ([]Scheme, error) {
	var (
		out  []Scheme
		seen = make(map[Scheme]struct{})
	)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.EqualFold(part, "all") {
			return append([]Scheme(nil), Schemes...), nil
		}
		scheme, err := ParseScheme(part)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[scheme]; ok {
			continue
		}
		seen[scheme] = struct{}{}
		out = append(out, scheme)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scheme selected")
	}
	return out, nil
}

// Group names produced by the schemes.
const (
	GroupText         = "TEXT"
	GroupData         = "DATA"
	GroupBSS          = "BSS"
	GroupROData       = "RODATA"
	GroupOthers       = "OTHERS"
	GroupExclude      = "EXCLUDE"
	GroupWarnings     = "WARNINGS"
	GroupDebugMeta    = "DEBUG_META"
	GroupUserSelected = "USER_SELECTED"
)
