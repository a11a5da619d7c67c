package web

import "embed"

// Templates embeds notification mail templates.
//
//go:embed templates/mail/*.html
var Templates embed.FS
