package main

import (
	"os/exec"
	"runtime/debug"
	"strings"
	"time"
)

var commit = "dev"
var buildDate = ""

func init() {
	info, ok := debug.ReadBuildInfo()
	if ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "dev" && s.Value != "" {
					commit = short(s.Value)
				}
			case "vcs.time":
				if buildDate == "" && s.Value != "" {
					if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
						buildDate = t.Format("2006-01-02")
					}
				}
			case "vcs.modified":
				if s.Value == "true" && !strings.HasSuffix(commit, "-dirty") && commit != "dev" {
					commit += "-dirty"
				}
			}
		}
	}
	// go run builds carry no vcs settings
	if commit == "dev" {
		if c, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
			commit = short(strings.TrimSpace(string(c)))
		}
	}
	if buildDate == "" {
		buildDate = time.Now().Format("2006-01-02")
	}
}

func short(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// version is the build identifier reported on /health and at start-up.
func version() string {
	return commit + " (" + buildDate + ")"
}
