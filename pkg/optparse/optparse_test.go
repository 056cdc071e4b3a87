package optparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortNoArg(t *testing.T) {
	p := New([]string{"-v"}, []Option{{Short: 'v', Mode: NoArg}})
	code, opt, val := p.Next()
	require.Equal(t, OK, code)
	require.NotNil(t, opt)
	assert.Equal(t, byte('v'), opt.Short)
	assert.Equal(t, "", val)

	code, _, _ = p.Next()
	assert.Equal(t, End, code)
}

func TestShortAttachedArg(t *testing.T) {
	p := New([]string{"-xval"}, []Option{{Short: 'x', Mode: RequiredArg}})
	code, opt, val := p.Next()
	require.Equal(t, OK, code)
	assert.Equal(t, byte('x'), opt.Short)
	assert.Equal(t, "val", val)
}

func TestShortSeparateArg(t *testing.T) {
	p := New([]string{"-x", "val"}, []Option{{Short: 'x', Mode: RequiredArg}})
	code, _, val := p.Next()
	require.Equal(t, OK, code)
	assert.Equal(t, "val", val)
	assert.Equal(t, 2, p.Index())
}

func TestShortRequiredArgMissing(t *testing.T) {
	p := New([]string{"-x"}, []Option{{Short: 'x', Mode: RequiredArg}})
	code, _, _ := p.Next()
	assert.Equal(t, MissingArg, code)
}

func TestBundledShortFlagsDoNotMutateCallerArgv(t *testing.T) {
	argv := []string{"-abc", "rest"}
	original := append([]string(nil), argv...)

	opts := []Option{
		{Short: 'a', Mode: NoArg},
		{Short: 'b', Mode: NoArg},
		{Short: 'c', Mode: NoArg},
	}
	p := New(argv, opts)

	var seen []byte
	for {
		code, opt, val := p.Next()
		if code == End {
			break
		}
		require.Equal(t, OK, code)
		assert.Equal(t, "", val)
		seen = append(seen, opt.Short)
	}

	assert.Equal(t, []byte{'a', 'b', 'c'}, seen)
	assert.Equal(t, original, argv, "the parser must never rewrite the caller's argv slice")
	assert.Equal(t, []string{"rest"}, p.args[p.Index():])
}

func TestLongNoArg(t *testing.T) {
	p := New([]string{"--verbose"}, []Option{{Long: "verbose", Mode: NoArg}})
	code, opt, _ := p.Next()
	require.Equal(t, OK, code)
	assert.Equal(t, "verbose", opt.Long)
}

func TestLongEqualsArg(t *testing.T) {
	p := New([]string{"--name=joe"}, []Option{{Long: "name", Mode: RequiredArg}})
	code, _, val := p.Next()
	require.Equal(t, OK, code)
	assert.Equal(t, "joe", val)
}

func TestLongSeparateArg(t *testing.T) {
	p := New([]string{"--name", "joe"}, []Option{{Long: "name", Mode: RequiredArg}})
	code, _, val := p.Next()
	require.Equal(t, OK, code)
	assert.Equal(t, "joe", val)
}

func TestOptionalArgAttachesWhenNotAnotherOption(t *testing.T) {
	opts := []Option{{Long: "level", Mode: OptionalArg}}
	p := New([]string{"--level", "5"}, opts)
	code, _, val := p.Next()
	require.Equal(t, OK, code)
	assert.Equal(t, "5", val)
}

func TestOptionalArgDoesNotStealFollowingOption(t *testing.T) {
	opts := []Option{
		{Long: "level", Mode: OptionalArg},
		{Long: "verbose", Mode: NoArg},
	}
	p := New([]string{"--level", "--verbose"}, opts)
	code, opt, val := p.Next()
	require.Equal(t, OK, code)
	assert.Equal(t, "level", opt.Long)
	assert.Equal(t, "", val)

	code, opt, _ = p.Next()
	require.Equal(t, OK, code)
	assert.Equal(t, "verbose", opt.Long)
}

func TestDoubleDashEndsParsing(t *testing.T) {
	p := New([]string{"--", "-x", "file"}, []Option{{Short: 'x', Mode: NoArg}})
	code, _, _ := p.Next()
	require.Equal(t, End, code)
	assert.Equal(t, []string{"-x", "file"}, p.args[p.Index():])
}

func TestBareDashEndsParsing(t *testing.T) {
	p := New([]string{"-", "rest"}, nil)
	code, _, _ := p.Next()
	require.Equal(t, End, code)
	assert.Equal(t, 0, p.Index())
}

func TestUnknownOption(t *testing.T) {
	p := New([]string{"-z"}, []Option{{Short: 'x', Mode: NoArg}})
	code, _, _ := p.Next()
	assert.Equal(t, Unknown, code)
}

func TestPositionalArgumentEndsParsing(t *testing.T) {
	p := New([]string{"file.txt"}, []Option{{Short: 'x', Mode: NoArg}})
	code, _, _ := p.Next()
	assert.Equal(t, End, code)
	assert.Equal(t, 0, p.Index())
}

func TestDoubleDashAloneIsNotMalformed(t *testing.T) {
	p := New([]string{"--"}, nil)
	// "--" alone is the terminator, not malformed; confirm it is treated as End.
	code, _, _ := p.Next()
	assert.Equal(t, End, code)
}
