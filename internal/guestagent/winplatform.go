/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package guestagent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/go-logr/logr"
)

// uiTreeLimits caps the serialized accessibility tree so a pathological UI
// (a spreadsheet with a million cells, a file tree with unbounded depth)
// cannot stall an episode, per §4.1/§11 "hard caps on traversal".
const (
	maxTreeDepth    = 50
	maxTreeFanout   = 1025
	maxSpreadsheetN = 500
)

// WinPlatform is the production Platform backed by real Windows tooling:
// PowerShell driving .NET's UI Automation client library
// (UIAutomationClient/UIAutomationTypes) for accessibility and window
// state, System.Drawing/System.Windows.Forms for screen capture, and
// ffmpeg's gdigrab device for screen recording. It is the component that
// actually runs inside the guest VM; everything above it in this package is
// transport and caps.
//
// PowerShell over .NET's UI Automation assemblies is the same underlying
// Windows UI Automation API the reference implementation drives through
// comtypes/COM (_examples/original_source/.../uiautomation_utils.py); this
// is PowerShell's idiomatic door into it, reached the same way Execute
// already reaches PowerShell for /execute.
type WinPlatform struct {
	Log logr.Logger

	// Shell is the command name used for /execute's default shell
	// ("powershell" unless overridden per request), kept as a field so
	// tests can point it at a stub binary.
	Shell string

	// A11yBackend selects the accessibility tree's traversal strategy:
	// "uia" walks the full UI Automation ControlView tree, "win32" walks
	// raw HWNDs via EnumChildWindows for apps that don't expose a UIA
	// tree cleanly.
	A11yBackend string

	recMu   sync.Mutex
	recCmd  *exec.Cmd
	recIn   io.WriteCloser
	recFile string
}

// NewWinPlatform returns a platform bound to the host's real shell.
func NewWinPlatform(log logr.Logger, a11yBackend string) *WinPlatform {
	if a11yBackend == "" {
		a11yBackend = "uia"
	}
	return &WinPlatform{Log: log.WithName("winplatform"), Shell: "powershell", A11yBackend: a11yBackend}
}

// runPS runs script under the configured shell and returns raw stdout
// bytes, since several callers (Screenshot, ForegroundWindow) need
// binary-safe output rather than a line of text.
func (p *WinPlatform) runPS(ctx context.Context, script string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, p.Shell, "-NoProfile", "-NonInteractive", "-Command", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (p *WinPlatform) Execute(ctx context.Context, command, shell string) (string, string, int, error) {
	if shell == "" {
		shell = p.Shell
	}
	cmd := exec.CommandContext(ctx, shell, "-NoProfile", "-Command", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
		err = nil // a nonzero exit is a normal /execute result, not a transport error
	}
	return stdout.String(), stderr.String(), code, err
}

// ExecuteWindows runs a pyautogui/code-block fragment through PowerShell,
// with the facade's current snapshot injected as environment variables the
// script can reference via $env: (§4.1 /execute_windows).
func (p *WinPlatform) ExecuteWindows(ctx context.Context, code string, facade *Facade) error {
	rects, windowRect, _, scale, clip := facade.Snapshot()
	rectsJSON, _ := json.Marshal(rects)
	preamble := fmt.Sprintf(
		"$env:WINDOW_RECT = '%d,%d,%d,%d'; $env:SCALE_FACTOR = '%v'; $env:CLIPBOARD = %s; $env:RECTS = %s\n",
		windowRect[0], windowRect[1], windowRect[2], windowRect[3], scale,
		psQuote(clip), psQuote(string(rectsJSON)),
	)
	_, err := p.runPS(ctx, preamble+code)
	if err != nil {
		return fmt.Errorf("execute_windows: %w", err)
	}
	return nil
}

// psQuote renders s as a single-quoted PowerShell string literal.
func psQuote(s string) string {
	escaped := ""
	for _, r := range s {
		if r == '\'' {
			escaped += "''"
		} else {
			escaped += string(r)
		}
	}
	return "'" + escaped + "'"
}

const screenshotScript = `
Add-Type -AssemblyName System.Windows.Forms,System.Drawing
$bounds = [System.Windows.Forms.Screen]::PrimaryScreen.Bounds
$bmp = New-Object System.Drawing.Bitmap $bounds.Width, $bounds.Height
$gfx = [System.Drawing.Graphics]::FromImage($bmp)
$gfx.CopyFromScreen($bounds.Location, [System.Drawing.Point]::Empty, $bounds.Size)
$ms = New-Object System.IO.MemoryStream
$bmp.Save($ms, [System.Drawing.Imaging.ImageFormat]::Png)
$bytes = $ms.ToArray()
[Console]::OpenStandardOutput().Write($bytes, 0, $bytes.Length)
`

func (p *WinPlatform) Screenshot(ctx context.Context) ([]byte, error) {
	out, err := p.runPS(ctx, screenshotScript)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return out, nil
}

const win32Preamble = `
Add-Type @"
using System;
using System.Runtime.InteropServices;
using System.Text;
public class Win32 {
    public delegate bool EnumWindowsProc(IntPtr hWnd, IntPtr lParam);
    [DllImport("user32.dll")] public static extern IntPtr GetForegroundWindow();
    [DllImport("user32.dll")] public static extern bool EnumWindows(EnumWindowsProc proc, IntPtr lParam);
    [DllImport("user32.dll")] public static extern int GetWindowText(IntPtr hWnd, StringBuilder sb, int count);
    [DllImport("user32.dll")] public static extern int GetClassName(IntPtr hWnd, StringBuilder sb, int count);
    [DllImport("user32.dll")] public static extern bool IsWindowVisible(IntPtr hWnd);
    [DllImport("user32.dll")] public static extern bool SetForegroundWindow(IntPtr hWnd);
    public struct RECT { public int Left; public int Top; public int Right; public int Bottom; }
    [DllImport("user32.dll")] public static extern bool GetWindowRect(IntPtr hWnd, out RECT rect);
}
"@
`

func (p *WinPlatform) AccessibilityTree(ctx context.Context, backend string) (string, error) {
	if backend == "" {
		backend = p.A11yBackend
	}
	var script string
	switch backend {
	case "win32":
		script = win32Preamble + fmt.Sprintf(`
$nodes = New-Object System.Collections.ArrayList
$proc = {
    param($hWnd, $lParam)
    if ([Win32]::IsWindowVisible($hWnd)) {
        $title = New-Object System.Text.StringBuilder 256
        [Win32]::GetWindowText($hWnd, $title, 256) | Out-Null
        $class = New-Object System.Text.StringBuilder 256
        [Win32]::GetClassName($hWnd, $class, 256) | Out-Null
        if ($title.Length -gt 0 -and $nodes.Count -lt %d) {
            $nodes.Add(@{ title = $title.ToString(); class = $class.ToString() }) | Out-Null
        }
    }
    return $true
}
[Win32]::EnumWindows($proc, [IntPtr]::Zero) | Out-Null
$nodes | ConvertTo-Json -Compress
`, maxTreeFanout)
	default: // uia
		script = fmt.Sprintf(`
Add-Type -AssemblyName UIAutomationClient,UIAutomationTypes
function Walk-Element($el, $depth) {
    if ($depth -gt %d) { return $null }
    $node = @{ name = $el.Current.Name; type = $el.Current.ControlType.ProgrammaticName; children = @() }
    $walker = [System.Windows.Automation.TreeWalker]::ControlViewWalker
    $child = $walker.GetFirstChild($el)
    $count = 0
    while ($child -ne $null -and $count -lt %d) {
        $kid = Walk-Element $child ($depth + 1)
        if ($kid -ne $null) { $node.children += $kid }
        $child = $walker.GetNextSibling($child)
        $count++
    }
    return $node
}
$root = [System.Windows.Automation.AutomationElement]::FocusedElement
if ($root -eq $null) { $root = [System.Windows.Automation.AutomationElement]::RootElement }
Walk-Element $root 0 | ConvertTo-Json -Depth %d -Compress
`, maxTreeDepth, maxTreeFanout, maxTreeDepth+2)
	}

	out, err := p.runPS(ctx, script)
	if err != nil {
		return "", fmt.Errorf("accessibility: %w", err)
	}
	return string(out), nil
}

type foregroundWindowResult struct {
	Title string `json:"title"`
	Rect  [4]int `json:"rect"`
	Image string `json:"image"`
}

const foregroundWindowScript = win32Preamble + `
Add-Type -AssemblyName System.Windows.Forms,System.Drawing
$hwnd = [Win32]::GetForegroundWindow()
$sb = New-Object System.Text.StringBuilder 256
[Win32]::GetWindowText($hwnd, $sb, 256) | Out-Null
$rect = New-Object Win32+RECT
[Win32]::GetWindowRect($hwnd, [ref]$rect) | Out-Null
$w = [Math]::Max(1, $rect.Right - $rect.Left)
$h = [Math]::Max(1, $rect.Bottom - $rect.Top)
$bmp = New-Object System.Drawing.Bitmap $w, $h
$gfx = [System.Drawing.Graphics]::FromImage($bmp)
$gfx.CopyFromScreen($rect.Left, $rect.Top, 0, 0, $bmp.Size)
$ms = New-Object System.IO.MemoryStream
$bmp.Save($ms, [System.Drawing.Imaging.ImageFormat]::Png)
$result = @{ title = $sb.ToString(); rect = @($rect.Left, $rect.Top, $rect.Right, $rect.Bottom); image = [Convert]::ToBase64String($ms.ToArray()) }
$result | ConvertTo-Json -Compress
`

func (p *WinPlatform) ForegroundWindow(ctx context.Context) (string, [4]int, []byte, error) {
	out, err := p.runPS(ctx, foregroundWindowScript)
	if err != nil {
		return "", [4]int{}, nil, fmt.Errorf("foreground window: %w", err)
	}
	var res foregroundWindowResult
	if err := json.Unmarshal(out, &res); err != nil {
		return "", [4]int{}, nil, fmt.Errorf("foreground window: decode: %w", err)
	}
	img, err := base64.StdEncoding.DecodeString(res.Image)
	if err != nil {
		return "", [4]int{}, nil, fmt.Errorf("foreground window: decode image: %w", err)
	}
	return res.Title, res.Rect, img, nil
}

const visibleWindowsScript = win32Preamble + `
$titles = New-Object System.Collections.ArrayList
$proc = {
    param($hWnd, $lParam)
    if ([Win32]::IsWindowVisible($hWnd)) {
        $sb = New-Object System.Text.StringBuilder 256
        [Win32]::GetWindowText($hWnd, $sb, 256) | Out-Null
        if ($sb.Length -gt 0) { $titles.Add($sb.ToString()) | Out-Null }
    }
    return $true
}
[Win32]::EnumWindows($proc, [IntPtr]::Zero) | Out-Null
$titles -join "` + "`n" + `"
`

func (p *WinPlatform) VisibleWindows(ctx context.Context) ([]string, error) {
	out, err := p.runPS(ctx, visibleWindowsScript)
	if err != nil {
		return nil, fmt.Errorf("visible windows: %w", err)
	}
	var titles []string
	for _, line := range bytes.Split(bytes.TrimSpace(out), []byte("\n")) {
		if len(line) > 0 {
			titles = append(titles, string(line))
		}
	}
	return titles, nil
}

const terminalScript = win32Preamble + `
Add-Type -AssemblyName UIAutomationClient,UIAutomationTypes
$hwnd = [Win32]::GetForegroundWindow()
$el = [System.Windows.Automation.AutomationElement]::FromHandle($hwnd)
$pattern = $null
if ($el.TryGetCurrentPattern([System.Windows.Automation.TextPattern]::Pattern, [ref]$pattern)) {
    $pattern.DocumentRange.GetText(-1)
} else {
    ""
}
`

func (p *WinPlatform) Terminal(ctx context.Context) (string, error) {
	out, err := p.runPS(ctx, terminalScript)
	if err != nil {
		return "", fmt.Errorf("terminal: %w", err)
	}
	return string(out), nil
}

func (p *WinPlatform) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// StartRecording launches ffmpeg's gdigrab device recording the desktop to
// a temp file; EndRecording asks it to finalize cleanly via a "q" on
// stdin (the container trailer is only written on a graceful stop) and
// returns the recorded bytes.
func (p *WinPlatform) StartRecording(ctx context.Context) error {
	p.recMu.Lock()
	defer p.recMu.Unlock()
	if p.recCmd != nil {
		return fmt.Errorf("start recording: a recording is already in progress")
	}

	f, err := os.CreateTemp("", "legatus-recording-*.mp4")
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	path := f.Name()
	_ = f.Close()

	cmd := exec.Command("ffmpeg", "-y", "-f", "gdigrab", "-framerate", "10", "-i", "desktop", path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("start recording: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("start recording: %w", err)
	}

	p.recCmd, p.recIn, p.recFile = cmd, stdin, path
	return nil
}

func (p *WinPlatform) EndRecording(ctx context.Context) ([]byte, error) {
	p.recMu.Lock()
	cmd, stdin, path := p.recCmd, p.recIn, p.recFile
	p.recCmd, p.recIn, p.recFile = nil, nil, ""
	p.recMu.Unlock()

	if cmd == nil {
		return nil, fmt.Errorf("end recording: no recording in progress")
	}
	_, _ = io.WriteString(stdin, "q")
	_ = stdin.Close()
	_ = cmd.Wait()
	defer os.Remove(path)

	out, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("end recording: %w", err)
	}
	return out, nil
}

// Setup, FilesystemProbe, and AppProbe are implemented in winprimitives.go,
// which holds the primitive/probe registries themselves; WinPlatform only
// supplies the shellout mechanics they share.
