/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package guestagent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// setupPrimitive is one named /setup/{primitive} handler (§4.1: launch,
// open_file, activate_window, download, chdir, execute, ...).
type setupPrimitive func(ctx context.Context, payload map[string]interface{}) error

const activateWindowScript = win32Preamble + `
$target = %s
$proc = {
    param($hWnd, $lParam)
    $sb = New-Object System.Text.StringBuilder 256
    [Win32]::GetWindowText($hWnd, $sb, 256) | Out-Null
    if ([Win32]::IsWindowVisible($hWnd) -and $sb.ToString() -like "*$target*") {
        [Win32]::SetForegroundWindow($hWnd) | Out-Null
        return $false
    }
    return $true
}
[Win32]::EnumWindows($proc, [IntPtr]::Zero) | Out-Null
`

func (p *WinPlatform) setupTable() map[string]setupPrimitive {
	return map[string]setupPrimitive{
		"launch": func(ctx context.Context, payload map[string]interface{}) error {
			exe, _ := payload["command"].(string)
			if exe == "" {
				return fmt.Errorf("setup/launch: missing command")
			}
			return exec.CommandContext(ctx, exe).Start()
		},
		"open_file": func(ctx context.Context, payload map[string]interface{}) error {
			path, _ := payload["path"].(string)
			return exec.CommandContext(ctx, "cmd", "/c", "start", "", path).Run()
		},
		"activate_window": func(ctx context.Context, payload map[string]interface{}) error {
			title, _ := payload["window_name"].(string)
			_, err := p.runPS(ctx, fmt.Sprintf(activateWindowScript, psQuote(title)))
			return err
		},
		"chdir": func(ctx context.Context, payload map[string]interface{}) error {
			path, _ := payload["path"].(string)
			return os.Chdir(path)
		},
		"download": func(ctx context.Context, payload map[string]interface{}) error {
			url, _ := payload["url"].(string)
			dest, _ := payload["path"].(string)
			script := fmt.Sprintf("Invoke-WebRequest -Uri %s -OutFile %s -UseBasicParsing", psQuote(url), psQuote(dest))
			_, err := p.runPS(ctx, script)
			return err
		},
		"execute": func(ctx context.Context, payload map[string]interface{}) error {
			command, _ := payload["command"].(string)
			_, _, _, err := p.Execute(ctx, command, "")
			return err
		},
	}
}

func (p *WinPlatform) Setup(ctx context.Context, primitive string, payload map[string]interface{}) error {
	fn, ok := p.setupTable()[primitive]
	if !ok {
		return fmt.Errorf("setup: unknown primitive %q", primitive)
	}
	return fn(ctx, payload)
}

// filesystemProbe is one named filesystem/display probe
// (folder_exists, file_exists, desktop_path, screen_size, ...).
type filesystemProbe func(ctx context.Context, payload map[string]interface{}) (interface{}, error)

const wallpaperScript = `(Get-ItemProperty -Path 'HKCU:\Control Panel\Desktop' -Name Wallpaper).Wallpaper`

const screenSizeScript = `
Add-Type -AssemblyName System.Windows.Forms
$b = [System.Windows.Forms.Screen]::PrimaryScreen.Bounds
"$($b.Width)x$($b.Height)"
`

func (p *WinPlatform) filesystemTable() map[string]filesystemProbe {
	return map[string]filesystemProbe{
		"folder_exists": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			path, _ := payload["path"].(string)
			info, err := os.Stat(path)
			return err == nil && info.IsDir(), nil
		},
		"file_exists": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			path, _ := payload["path"].(string)
			info, err := os.Stat(path)
			return err == nil && !info.IsDir(), nil
		},
		"list_directory": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			path, _ := payload["path"].(string)
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(entries))
			for i, e := range entries {
				if i >= maxSpreadsheetN {
					break
				}
				names = append(names, e.Name())
			}
			return names, nil
		},
		"desktop_path": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			return filepath.Join(home, "Desktop"), nil
		},
		"documents_path": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			return filepath.Join(home, "Documents"), nil
		},
		"wallpaper": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			out, err := p.runPS(ctx, wallpaperScript)
			return strings.TrimSpace(string(out)), err
		},
		"screen_size": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			out, err := p.runPS(ctx, screenSizeScript)
			return strings.TrimSpace(string(out)), err
		},
		"window_size": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			_, rect, _, err := p.ForegroundWindow(ctx)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("%dx%d", rect[2]-rect[0], rect[3]-rect[1]), nil
		},
	}
}

func (p *WinPlatform) FilesystemProbe(ctx context.Context, probe string, payload map[string]interface{}) (interface{}, error) {
	fn, ok := p.filesystemTable()[probe]
	if !ok {
		return nil, fmt.Errorf("filesystem probe: unknown probe %q", probe)
	}
	return fn(ctx, payload)
}

// appProbe is one named higher-level application probe, representative of
// the evaluator getter kinds in §4.5/§11 that need in-guest cooperation
// rather than a pure file/registry read (details-view toggle state, sort
// order, read-only ACL check, tag presence, library-folder membership, a
// running timer, an open world-clock window).
type appProbe func(ctx context.Context, payload map[string]interface{}) (interface{}, error)

// uiaFindPreamble defines the Shell Folder View lookup every Explorer probe
// shares, grounded directly on
// _examples/original_source/.../uiautomation_utils.py's
// find_element_by_name("Shell Folder View") walk from the foreground hwnd.
const uiaFindPreamble = win32Preamble + `
Add-Type -AssemblyName UIAutomationClient,UIAutomationTypes
$hwnd = [Win32]::GetForegroundWindow()
$root = [System.Windows.Automation.AutomationElement]::FromHandle($hwnd)
$cond = New-Object System.Windows.Automation.PropertyCondition([System.Windows.Automation.AutomationElement]::NameProperty, "Shell Folder View")
$panel = $root.FindFirst([System.Windows.Automation.TreeScope]::Descendants, $cond)
`

const isDetailsViewScript = uiaFindPreamble + `
if ($panel -eq $null) { "false"; exit }
$headerCond = New-Object System.Windows.Automation.PropertyCondition([System.Windows.Automation.AutomationElement]::NameProperty, "Header")
$header = $panel.FindFirst([System.Windows.Automation.TreeScope]::Descendants, $headerCond)
if ($header -ne $null) { "true" } else { "false" }
`

// sortedByModifiedTimeScript lists the file names as displayed inside the
// "Shell Folder View" panel (in on-screen order) and compares that order
// against the directory sorted by LastWriteTime, mirroring
// get_file_list_from_explorer + a chronological comparison.
const sortedByModifiedTimeScript = uiaFindPreamble + `
if ($panel -eq $null) { "false"; exit }
$walker = [System.Windows.Automation.TreeWalker]::ControlViewWalker
$itemsList = $walker.GetFirstChild($panel)
$item = $walker.GetFirstChild($itemsList)
$displayOrder = New-Object System.Collections.ArrayList
while ($item -ne $null) {
    if ($item.Current.Name -ne "Header") { $displayOrder.Add($item.Current.Name) | Out-Null }
    $item = $walker.GetNextSibling($item)
}
$sorted = Get-ChildItem -Path %s | Sort-Object LastWriteTime | Select-Object -ExpandProperty Name
if (($displayOrder -join ',') -eq ($sorted -join ',')) { "true" } else { "false" }
`

// isReadOnlyScript probes write access the same way Explorer's own
// "read-only" affordance is ultimately backed: an actual attempted write,
// rather than parsing ACL text (icacls output format is not stable across
// locales).
const isReadOnlyScript = `
$target = Join-Path %s ([System.IO.Path]::GetRandomFileName())
try {
    [System.IO.File]::Create($target).Close()
    Remove-Item $target -Force
    "false"
} catch {
    "true"
}
`

// allImagesTaggedScript reads the Shell "Tags" column (System.Keywords)
// through the Shell.Application COM automation object, the same property
// surface Explorer's own tag editor writes to.
const allImagesTaggedScript = `
$shell = New-Object -ComObject Shell.Application
$folder = $shell.Namespace(%s)
$allTagged = $true
foreach ($item in $folder.Items()) {
    if ($item.Name -match '\.(jpg|jpeg|png|bmp|gif)$') {
        $tags = $folder.GetDetailsOf($item, 18)
        if ([string]::IsNullOrWhiteSpace($tags)) { $allTagged = $false }
    }
}
if ($allTagged) { "true" } else { "false" }
`

// libraryFoldersScript parses the .library-ms XML descriptors Windows
// Libraries stores under %APPDATA%\Microsoft\Windows\Libraries.
const libraryFoldersScript = `
$libDir = Join-Path $env:APPDATA 'Microsoft\Windows\Libraries'
$result = New-Object System.Collections.ArrayList
Get-ChildItem -Path $libDir -Filter *.library-ms -ErrorAction SilentlyContinue | ForEach-Object {
    [xml]$xml = Get-Content $_.FullName
    $xml.libraryDescription.searchConnectorDescriptionList.searchConnectorDescription | ForEach-Object {
        $result.Add($_.simpleLocation.url) | Out-Null
    }
}
$result | ConvertTo-Json -Compress
`

// uiaClockPreamble grounds Find-ElementByNameRegex/Find-ElementByName/
// Maximize-ClockWindow directly on find_element_by_name and
// _maximize_clock_window from uiautomation_utils.py: a recursive
// ControlView walk by name or name regex, then an InvokePattern click on
// "Maximize Clock" so the world-clock/timer text is actually on screen.
const uiaClockPreamble = win32Preamble + `
Add-Type -AssemblyName UIAutomationClient,UIAutomationTypes

function Find-ElementByNameRegex($element, $pattern) {
    if ($element.Current.Name -match $pattern) { return $element }
    $walker = [System.Windows.Automation.TreeWalker]::ControlViewWalker
    $child = $walker.GetFirstChild($element)
    while ($child -ne $null) {
        $found = Find-ElementByNameRegex $child $pattern
        if ($found -ne $null) { return $found }
        $child = $walker.GetNextSibling($child)
    }
    return $null
}

function Find-ElementByName($element, $name) {
    $cond = New-Object System.Windows.Automation.PropertyCondition([System.Windows.Automation.AutomationElement]::NameProperty, $name)
    return $element.FindFirst([System.Windows.Automation.TreeScope]::Subtree, $cond)
}

function Maximize-ClockWindow($clockElement) {
    $maximize = Find-ElementByName $clockElement "Maximize Clock"
    if ($maximize -ne $null) {
        try {
            $pattern = $maximize.GetCurrentPattern([System.Windows.Automation.InvokePattern]::Pattern)
            $pattern.Invoke()
            Start-Sleep -Seconds 1
        } catch {}
    }
}

$clockHwnd = [Win32]::GetForegroundWindow()
$clockElement = [System.Windows.Automation.AutomationElement]::FromHandle($clockHwnd)
Maximize-ClockWindow $clockElement
`

const timerStartedScript = uiaClockPreamble + `
$timerRegex = %s
$timerElement = Find-ElementByNameRegex $clockElement $timerRegex
if ($timerElement -ne $null) {
    $pauseElement = Find-ElementByName $timerElement "Timer running, Pause"
    if ($pauseElement -ne $null) { "true" } else { "false" }
} else {
    "false"
}
`

const worldClockExistsScript = uiaClockPreamble + `
$cityRegex = %s
$element = Find-ElementByNameRegex $clockElement $cityRegex
if ($element -ne $null) { "true" } else { "false" }
`

// timerDisplayText reproduces clock_check_if_timer_started's singular-vs-
// plural formatting ("1 hour 2 minutes 3 seconds").
func timerDisplayText(hours, minutes, seconds int) string {
	unit := func(n int, singular, plural string) string {
		if n == 1 {
			return singular
		}
		return plural
	}
	return fmt.Sprintf("%d %s %d %s %d %s",
		hours, unit(hours, "hour", "hours"),
		minutes, unit(minutes, "minute", "minutes"),
		seconds, unit(seconds, "second", "seconds"))
}

// psRegexQuote renders pattern as a PowerShell string literal holding a
// ".*<escaped literal>.*" regex, matching
// clock_check_if_timer_started/clock_check_if_world_clock_exists's
// f".*{text}.*" construction.
func psRegexQuote(literal string) string {
	escaped := strings.NewReplacer(
		`\`, `\\`, `.`, `\.`, `*`, `\*`, `+`, `\+`, `?`, `\?`, `(`, `\(`, `)`, `\)`,
		`[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`, `^`, `\^`, `$`, `\$`, `|`, `\|`,
	).Replace(literal)
	return psQuote(".*" + escaped + ".*")
}

func payloadString(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

func payloadInt(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func (p *WinPlatform) appTable() map[string]appProbe {
	return map[string]appProbe{
		"is_details_view": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			out, err := p.runPS(ctx, isDetailsViewScript)
			return strings.TrimSpace(string(out)) == "true", err
		},
		"are_files_sorted_by_modified_time": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			path := payloadString(payload, "path")
			out, err := p.runPS(ctx, fmt.Sprintf(sortedByModifiedTimeScript, psQuote(path)))
			return strings.TrimSpace(string(out)) == "true", err
		},
		"is_directory_read_only_for_user": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			path := payloadString(payload, "path")
			out, err := p.runPS(ctx, fmt.Sprintf(isReadOnlyScript, psQuote(path)))
			return strings.TrimSpace(string(out)) == "true", err
		},
		"are_all_images_tagged": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			path := payloadString(payload, "path")
			out, err := p.runPS(ctx, fmt.Sprintf(allImagesTaggedScript, psQuote(path)))
			return strings.TrimSpace(string(out)) == "true", err
		},
		"library_folders": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			out, err := p.runPS(ctx, libraryFoldersScript)
			return string(out), err
		},
		"check_if_timer_started": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			hours := payloadInt(payload, "hours")
			minutes := payloadInt(payload, "minutes")
			seconds := payloadInt(payload, "seconds")
			regex := psRegexQuote(timerDisplayText(hours, minutes, seconds))
			out, err := p.runPS(ctx, fmt.Sprintf(timerStartedScript, regex))
			return strings.TrimSpace(string(out)) == "true", err
		},
		"check_if_world_clock_exists": func(ctx context.Context, payload map[string]interface{}) (interface{}, error) {
			city := payloadString(payload, "city")
			country := payloadString(payload, "country")
			regex := psRegexQuote(fmt.Sprintf("%s, %s", city, country))
			out, err := p.runPS(ctx, fmt.Sprintf(worldClockExistsScript, regex))
			return strings.TrimSpace(string(out)) == "true", err
		},
	}
}

func (p *WinPlatform) AppProbe(ctx context.Context, probe string, payload map[string]interface{}) (interface{}, error) {
	fn, ok := p.appTable()[probe]
	if !ok {
		return nil, fmt.Errorf("app probe: unknown probe %q", probe)
	}
	return fn(ctx, payload)
}
