// Package prompt turns a dataset profile into model instructions.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/KaramelBytes/autodq-cli/internal/profile"
	"github.com/KaramelBytes/autodq-cli/internal/utils"
)

// DefaultTemplateName is looked up on the template search path.
const DefaultTemplateName = "dq_prompt.tmpl"

// Source records which branch produced a prompt.
type Source int

const (
	SourceFallback Source = iota
	SourceTemplate
)

func (s Source) String() string {
	if s == SourceTemplate {
		return "template"
	}
	return "fallback"
}

// Result is the built prompt. Path is set only for SourceTemplate.
type Result struct {
	Text   string
	Source Source
	Path   string
	Tokens int
}

// Builder renders prompts from a user template when one is present and valid,
// otherwise from the built-in instructions.
type Builder struct {
	Dirs   []string
	Name   string
	Logger *zap.Logger
}

// Build never fails: any template problem selects the fallback text.
func (b Builder) Build(ds *profile.Dataset) Result {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	name := b.Name
	if name == "" {
		name = DefaultTemplateName
	}
	if path, ok := utils.FindTemplate(b.Dirs, name); ok {
		text, err := renderFile(path, ds)
		if err == nil {
			return Result{Text: text, Source: SourceTemplate, Path: path, Tokens: utils.CountTokens(text)}
		}
		log.Warn("prompt template unusable, using fallback", zap.String("path", path), zap.Error(err))
	} else {
		log.Info("prompt template not found, using fallback", zap.String("name", name))
	}
	text, err := Fallback(ds)
	if err != nil {
		// profile documents are plain data; encoding cannot realistically fail
		log.Error("encode profile for prompt", zap.Error(err))
	}
	return Result{Text: text, Source: SourceFallback, Tokens: utils.CountTokens(text)}
}

// Build renders with the default search path.
func Build(ds *profile.Dataset) Result { return Builder{}.Build(ds) }

func renderFile(path string, ds *profile.Dataset) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	tmpl, err := template.New(filepath.Base(path)).Funcs(funcs).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, ds); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return sb.String(), nil
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := utils.PrettyJSON(v)
		return string(b), err
	},
	"join": strings.Join,
}

// Fallback is the built-in instruction text with the profile embedded as JSON.
func Fallback(ds *profile.Dataset) (string, error) {
	b, err := utils.PrettyJSON(ds)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("Analyze this CSV data profile and generate data quality checks:\n\n")
	sb.Write(b)
	sb.WriteString("\n\nGenerate a JSON array of data quality checks. Each check should have:\n")
	sb.WriteString("- \"column\": column name\n")
	sb.WriteString("- \"check_type\": type of check (null_check, range_check, pattern_check, etc.)\n")
	sb.WriteString("- \"description\": human readable description\n")
	sb.WriteString("- \"sql_condition\": the condition that should be true for good data\n\n")
	sb.WriteString("Return only a valid JSON array of checks.\n")
	return sb.String(), nil
}
