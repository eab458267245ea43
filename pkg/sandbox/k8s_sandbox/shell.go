package k8s_sandbox

import (
	"fmt"
	"sort"
	"strings"
)

// shellQuote single-quotes an argument for POSIX sh, doubling embedded
// single quotes as '\''. Any byte sequence round-trips unchanged through
// the remote shell.
func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

func shellJoin(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, shellQuote(a))
	}
	return strings.Join(quoted, " ")
}

// wrapCommand rewrites a command so that working directory and environment
// take effect inside the remote shell, since the exec protocol carries
// neither natively. Without a workdir or env the command passes through
// untouched. Env assignments are emitted in sorted key order so the
// wrapped form is deterministic.
func wrapCommand(command []string, workdir string, env map[string]string) []string {
	if workdir == "" && len(env) == 0 {
		return command
	}

	var b strings.Builder
	if workdir != "" {
		fmt.Fprintf(&b, "cd %s && ", shellQuote(workdir))
	}
	for _, k := range sortedKeys(env) {
		fmt.Fprintf(&b, "%s=%s ", k, shellQuote(env[k]))
	}
	b.WriteString("exec ")
	b.WriteString(shellJoin(command))

	return []string{"sh", "-c", b.String()}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
