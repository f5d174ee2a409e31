package pipes

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
)

func builtins() []Pipe {
	return []Pipe{
		Func{"trim", pipeTrim},
		Func{"upper", pipeUpper},
		Func{"lower", pipeLower},
		Func{"replace", pipeReplace},
		Func{"prefix", pipePrefix},
		Func{"suffix", pipeSuffix},
		Func{"base64", pipeBase64},
		Func{"base64d", pipeBase64d},
		Func{"hex", pipeHex},
		Func{"hexd", pipeHexd},
		Func{"sha256", pipeSHA256},
		Func{"sha3", pipeSHA3},
		Func{"urlencode", pipeURLEncode},
		Func{"mask", pipeMask},
	}
}

// trim strips surrounding whitespace, or the characters given via
// chars=.
func pipeTrim(value string, args map[string]string) (string, error) {
	if chars := args["chars"]; chars != "" {
		return strings.Trim(value, chars), nil
	}
	return strings.TrimSpace(value), nil
}

func pipeUpper(value string, _ map[string]string) (string, error) {
	return strings.ToUpper(value), nil
}

func pipeLower(value string, _ map[string]string) (string, error) {
	return strings.ToLower(value), nil
}

// replace substitutes every occurrence of old= with new=.
func pipeReplace(value string, args map[string]string) (string, error) {
	old, ok := args["old"]
	if !ok || old == "" {
		return "", fmt.Errorf("replace: missing old= argument")
	}
	return strings.ReplaceAll(value, old, args["new"]), nil
}

func pipePrefix(value string, args map[string]string) (string, error) {
	v, ok := args["value"]
	if !ok {
		return "", fmt.Errorf("prefix: missing value= argument")
	}
	return v + value, nil
}

func pipeSuffix(value string, args map[string]string) (string, error) {
	v, ok := args["value"]
	if !ok {
		return "", fmt.Errorf("suffix: missing value= argument")
	}
	return value + v, nil
}

func pipeBase64(value string, _ map[string]string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(value)), nil
}

func pipeBase64d(value string, _ map[string]string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("base64d: invalid input: %w", err)
	}
	return string(decoded), nil
}

func pipeHex(value string, _ map[string]string) (string, error) {
	return hex.EncodeToString([]byte(value)), nil
}

func pipeHexd(value string, _ map[string]string) (string, error) {
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("hexd: invalid input: %w", err)
	}
	return string(decoded), nil
}

func pipeSHA256(value string, _ map[string]string) (string, error) {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:]), nil
}

func pipeSHA3(value string, _ map[string]string) (string, error) {
	sum := sha3.Sum256([]byte(value))
	return hex.EncodeToString(sum[:]), nil
}

func pipeURLEncode(value string, _ map[string]string) (string, error) {
	return url.QueryEscape(value), nil
}

// mask replaces the value with asterisks, keeping the last keep=
// characters visible. keep defaults to 0 (fully masked).
func pipeMask(value string, args map[string]string) (string, error) {
	keep := 0
	if s := args["keep"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return "", fmt.Errorf("mask: invalid keep= argument %q", s)
		}
		keep = n
	}
	if keep >= len(value) {
		return value, nil
	}
	return strings.Repeat("*", len(value)-keep) + value[len(value)-keep:], nil
}
