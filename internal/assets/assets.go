// Package assets embeds the stepper adapter script, the site stylesheet, and images
package assets

import (
	"embed"
	"io/fs"
)

//go:embed web/*.js web/*.css web/img/*
var webFS embed.FS

// FS returns the embedded web files rooted at web/
func FS() fs.FS {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetStepperJS returns the showcase stepper adapter
func GetStepperJS() ([]byte, error) {
	return webFS.ReadFile("web/stepper.js")
}

// GetSiteCSS returns the site stylesheet
func GetSiteCSS() ([]byte, error) {
	return webFS.ReadFile("web/site.css")
}

// Images lists the bundled images referenced by the default content
var Images = []string{
	"img/hero.svg",
	"img/inbox.svg",
	"img/agents.svg",
	"img/journeys.svg",
	"img/analytics.svg",
	"img/banner-fallback.svg",
}
