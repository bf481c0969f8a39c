// Package ui holds the terminal styles shared by all commands.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	pass   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warn   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	fail   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	accent = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Pass renders success output.
func Pass(s string) string { return pass.Render(s) }

// Warn renders warnings.
func Warn(s string) string { return warn.Render(s) }

// Err renders errors.
func Err(s string) string { return fail.Render(s) }

// Accent renders titles and identifiers that should stand out.
func Accent(s string) string { return accent.Render(s) }

// Muted renders secondary detail like timestamps and ids.
func Muted(s string) string { return muted.Render(s) }
