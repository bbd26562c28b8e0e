package flux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

func registerIO(b *registryBuilder) {
	b.add("print", `*args, sep=" ", end="\n"`, EffectIO, "Writes the display forms of args to standard output.", builtinPrint)
	b.add("input", `prompt=""`, EffectIO|EffectBlocks, "Writes prompt and reads one line from standard input.", builtinInput)
	b.add("read_file", `path, mode="r", encoding="utf-8"`, EffectIO, "Contents of a file; bytes when mode contains b.", builtinReadFile)
	b.add("write_file", `path, data, mode="w", encoding="utf-8"`, EffectIO, "Writes data to a file and returns True.", builtinWriteFile)
	b.add("append_file", `path, data, encoding="utf-8"`, EffectIO, "Appends data to a file and returns True.", builtinAppendFile)
	b.add("exists", "path", EffectIO, "Whether path exists.", builtinExists)
	b.add("cwd", "", EffectIO, "Current working directory.", builtinCwd)
	b.add("listdir", `path="."`, EffectIO, "Sorted names of the entries in a directory.", builtinListdir)
	b.add("mkdir", "path, exist_ok=False", EffectIO, "Creates a directory and any missing parents.", builtinMkdir)
	b.add("remove", "path", EffectIO, "Deletes a file.", builtinRemove)
	b.add("rename", "src, dst", EffectIO, "Renames src to dst.", builtinRename)
	b.add("stat", "path", EffectIO, "File metadata: st_size, st_mode, st_mtime, is_dir, name, mode.", builtinStat)
}

func builtinPrint(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sep, end := " ", "\n"
	if err := unpack(fn, nil, kwargs, "sep?", &sep, "end?", &end); err != nil {
		return nil, err
	}
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = displayString(v)
	}
	rt := runtimeOf(thread)
	if _, err := io.WriteString(rt.engine.stdout, strings.Join(parts, sep)+end); err != nil {
		return nil, osError(err)
	}
	return starlark.None, nil
}

func builtinInput(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var prompt starlark.Value = starlark.String("")
	if err := unpackPositional(fn, args, kwargs, 0, &prompt); err != nil {
		return nil, err
	}
	e := runtimeOf(thread).engine
	if text := displayString(prompt); text != "" {
		if _, err := io.WriteString(e.stdout, text); err != nil {
			return nil, osError(err)
		}
	}
	line, err := e.readLine()
	if errors.Is(err, io.EOF) {
		return nil, newError(KindEOF, "EOF when reading a line")
	}
	if err != nil {
		return nil, osError(err)
	}
	return starlark.String(line), nil
}

// lookupEncoding resolves a WHATWG encoding label. A nil encoding means
// UTF-8, which is handled without transcoding.
func lookupEncoding(label string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "utf-8", "utf8", "":
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, wrapError(KindLookup, err, "unknown encoding: %s", label)
	}
	return enc, nil
}

func decodeText(data []byte, label string) (string, error) {
	enc, err := lookupEncoding(label)
	if err != nil {
		return "", err
	}
	if enc == nil {
		if !utf8.Valid(data) {
			return "", newError(KindUnicodeDecode, "'utf-8' codec can't decode data")
		}
		return string(data), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", wrapError(KindUnicodeDecode, err, "'%s' codec can't decode data", label)
	}
	return string(out), nil
}

func encodeText(text, label string) ([]byte, error) {
	enc, err := lookupEncoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return []byte(text), nil
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, wrapError(KindValue, err, "'%s' codec can't encode text", label)
	}
	return out, nil
}

func builtinReadFile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	mode, enc := "r", "utf-8"
	if err := unpack(fn, args, kwargs, "path", &path, "mode?", &mode, "encoding?", &enc); err != nil {
		return nil, err
	}
	if strings.ContainsAny(mode, "wax") {
		return nil, newError(KindValue, "read_file: invalid mode %q", mode)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, osError(err)
	}
	if strings.Contains(mode, "b") {
		return starlark.Bytes(data), nil
	}
	text, err := decodeText(data, enc)
	if err != nil {
		return nil, err
	}
	return starlark.String(text), nil
}

// openFlags maps a file mode string onto os.OpenFile flags.
func openFlags(mode string) (int, error) {
	var flags int
	switch strings.Trim(mode, "bt+") {
	case "w":
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "a":
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case "x":
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	default:
		return 0, newError(KindValue, "invalid mode: %q", mode)
	}
	return flags, nil
}

func writeData(path string, data starlark.Value, mode, enc string) error {
	flags, err := openFlags(mode)
	if err != nil {
		return err
	}
	var payload []byte
	if b, ok := data.(starlark.Bytes); ok && strings.Contains(mode, "b") {
		payload = []byte(b)
	} else if payload, err = encodeText(displayString(data), enc); err != nil {
		return err
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return osError(err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return osError(err)
	}
	return osError(f.Close())
}

func builtinWriteFile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	var data starlark.Value
	mode, enc := "w", "utf-8"
	if err := unpack(fn, args, kwargs, "path", &path, "data", &data, "mode?", &mode, "encoding?", &enc); err != nil {
		return nil, err
	}
	if err := writeData(path, data, mode, enc); err != nil {
		return nil, err
	}
	return starlark.True, nil
}

func builtinAppendFile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	var data starlark.Value
	enc := "utf-8"
	if err := unpack(fn, args, kwargs, "path", &path, "data", &data, "encoding?", &enc); err != nil {
		return nil, err
	}
	if err := writeData(path, data, "a", enc); err != nil {
		return nil, err
	}
	return starlark.True, nil
}

func builtinExists(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := unpackPositional(fn, args, kwargs, 1, &path); err != nil {
		return nil, err
	}
	_, err := os.Stat(path)
	return starlark.Bool(err == nil), nil
}

func builtinCwd(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil, osError(err)
	}
	return starlark.String(dir), nil
}

func builtinListdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	path := "."
	if err := unpackPositional(fn, args, kwargs, 0, &path); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, osError(err)
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	return stringList(names), nil
}

func builtinMkdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	existOK := false
	if err := unpack(fn, args, kwargs, "path", &path, "exist_ok?", &existOK); err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err == nil {
		if !existOK || !info.IsDir() {
			return nil, newError(KindFileExists, "file exists: %s", path)
		}
		return starlark.None, nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, osError(err)
	}
	return starlark.None, nil
}

func builtinRemove(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := unpackPositional(fn, args, kwargs, 1, &path); err != nil {
		return nil, err
	}
	if info, err := os.Lstat(path); err == nil && info.IsDir() {
		return nil, newError(KindIsADirectory, "is a directory: %s", path)
	}
	if err := os.Remove(path); err != nil {
		return nil, osError(err)
	}
	return starlark.None, nil
}

func builtinRename(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src, dst string
	if err := unpackPositional(fn, args, kwargs, 2, &src, &dst); err != nil {
		return nil, err
	}
	if err := os.Rename(src, dst); err != nil {
		return nil, osError(err)
	}
	return starlark.None, nil
}

func builtinStat(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := unpackPositional(fn, args, kwargs, 1, &path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, osError(err)
	}
	mtime := float64(info.ModTime().UnixNano()) / 1e9
	return starlarkstruct.FromStringDict(starlark.String("stat_result"), starlark.StringDict{
		"st_size":  starlark.MakeInt64(info.Size()),
		"st_mode":  starlark.MakeInt(int(info.Mode().Perm())),
		"st_mtime": starlark.Float(mtime),
		"is_dir":   starlark.Bool(info.IsDir()),
		"name":     starlark.String(info.Name()),
		"mode":     starlark.String(fmt.Sprint(info.Mode())),
	}), nil
}
