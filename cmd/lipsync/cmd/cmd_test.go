package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const utterance = `{"text": "konnichiwa", "total_duration": 1.0, "vowel_frames": [
	{"timestamp": 0.0, "vowel": "o", "intensity": 0.9, "duration": 0.2},
	{"timestamp": 0.2, "vowel": "N", "intensity": 0.3, "duration": 0.1},
	{"timestamp": 0.4, "vowel": "i", "intensity": 0.7, "duration": 0.2},
	{"timestamp": 0.6, "vowel": "a", "intensity": 0.9, "duration": 0.3}
]}`

// runCLI executes the root command with a config file in a scratch home.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfgFile, logLevel = "", ""
	generateOutput, generateName, generateAudio = "", "", ""
	generateFPS, generateRaw, generateSave = 0, false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--config", filepath.Join(home, "config.yaml")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lipsync v"+Version)
}

func TestGenerateAndInspect(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "hello.json")
	require.NoError(t, os.WriteFile(input, []byte(utterance), 0644))
	output := filepath.Join(dir, "hello.yaml")

	_, err := runCLI(t, "generate", input, "-o", output, "--fps", "10")
	require.NoError(t, err)
	require.FileExists(t, output)

	out, err := runCLI(t, "inspect", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Clip:      hello")
	assert.Contains(t, out, "Keyframes: 11")
	assert.Contains(t, out, "ParamMouthOpenY")
}

func TestGenerate_RejectsKeyframeClip(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clip.yaml")
	require.NoError(t, os.WriteFile(input, []byte("keyframes:\n  - time: 0\n    parameters:\n      ParamMouthOpenY: 0\n"), 0644))

	_, err := runCLI(t, "generate", input)
	assert.ErrorContains(t, err, "already a keyframe clip")
}

func TestInspect_Malformed(t *testing.T) {
	input := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(input, []byte("keyframes:\n  - time: 1\n    parameters: {}\n  - time: 0.5\n    parameters: {}\n"), 0644))

	_, err := runCLI(t, "inspect", input)
	assert.Error(t, err)
}

func TestClipsList_Empty(t *testing.T) {
	out, err := runCLI(t, "clips", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No clips in")
}
