// Package scripts embeds the Risor scripts shipped with pysem. They run
// through the runtime package and report with emit.
package scripts

import "embed"

// FS holds every bundled script, named by file.
//
//go:embed *.risor
var FS embed.FS
