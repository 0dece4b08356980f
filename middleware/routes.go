package middleware

import (
	"path"
	"strings"

	habitauth "github.com/habitloop/habitauth"
)

type routeClass int

const (
	routeBypass routeClass = iota
	routeProtected
	routePublic
	routeNeutral
)

// routeTable is the compiled form of habitauth.GateConfig. Classification
// order matters: bypass wins over everything, protected over public.
type routeTable struct {
	protectedPrefixes []string
	publicPaths       map[string]struct{}
	bypassPrefixes    []string
	bypassExtensions  map[string]struct{}
}

func newRouteTable(cfg habitauth.GateConfig) *routeTable {
	t := &routeTable{
		protectedPrefixes: append([]string(nil), cfg.ProtectedPrefixes...),
		publicPaths:       make(map[string]struct{}, len(cfg.PublicPaths)),
		bypassPrefixes:    append([]string(nil), cfg.BypassPrefixes...),
		bypassExtensions:  make(map[string]struct{}, len(cfg.BypassExtensions)),
	}
	for _, p := range cfg.PublicPaths {
		t.publicPaths[p] = struct{}{}
	}
	for _, ext := range cfg.BypassExtensions {
		t.bypassExtensions[strings.ToLower(ext)] = struct{}{}
	}
	return t
}

func (t *routeTable) classify(reqPath string) routeClass {
	for _, prefix := range t.bypassPrefixes {
		if hasPathPrefix(reqPath, prefix) {
			return routeBypass
		}
	}
	if ext := strings.ToLower(path.Ext(reqPath)); ext != "" {
		if _, ok := t.bypassExtensions[ext]; ok {
			return routeBypass
		}
	}

	for _, prefix := range t.protectedPrefixes {
		if hasPathPrefix(reqPath, prefix) {
			return routeProtected
		}
	}

	if _, ok := t.publicPaths[reqPath]; ok {
		return routePublic
	}

	return routeNeutral
}

// hasPathPrefix matches on segment boundaries: "/habits" covers "/habits"
// and "/habits/42" but not "/habitsfoo".
func hasPathPrefix(reqPath, prefix string) bool {
	if !strings.HasPrefix(reqPath, prefix) {
		return false
	}
	if len(reqPath) == len(prefix) {
		return true
	}
	return reqPath[len(prefix)] == '/'
}
