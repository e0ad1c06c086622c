package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLILocation is one occurrence with both byte offsets and a 1-based line
// and column.
type CLILocation struct {
	File  string `json:"file"`
	Line  int    `json:"line"`
	Col   int    `json:"col"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// CLIRename is a rename change set. Applied is false for --dry-run.
type CLIRename struct {
	OldName string      `json:"old_name"`
	NewName string      `json:"new_name"`
	Changes []CLIChange `json:"changes"`
	Move    *CLIMove    `json:"move,omitempty"`
	Applied bool        `json:"applied"`
}

// CLIChange is one rewritten file of a rename.
type CLIChange struct {
	File        string `json:"file"`
	Occurrences int    `json:"occurrences"`
}

// CLIMove is a renamed module file or package folder.
type CLIMove struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CLIChangeBatch is one debounced batch of files seen by watch.
type CLIChangeBatch struct {
	Files []string `json:"files"`
}

// CLIScriptOutput is what a script emitted, one decoded value per line.
type CLIScriptOutput struct {
	Values []any `json:"values"`
}
