package sqlgen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/KaramelBytes/autodq-cli/internal/checks"
	"github.com/KaramelBytes/autodq-cli/internal/utils"
)

// DefaultTemplateName is looked up on the template search path.
const DefaultTemplateName = "checks.sql.tmpl"

// DefaultTable is used in generated statements when no table is given.
const DefaultTable = "your_table"

// Source records which branch produced a script.
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

// Script is a rendered SQL document.
type Script struct {
	Text   string
	Source Source
	Path   string
}

// Renderer turns checks into one SQL script per dialect.
type Renderer struct {
	Dialect Dialect
	Dirs    []string
	Name    string
	Table   string
	Logger  *zap.Logger
}

// TemplateData is the value bound to "." in checks.sql.tmpl.
type TemplateData struct {
	Checks  []checks.Check
	Dialect Dialect
	Table   string
}

func (r Renderer) table() string {
	if strings.TrimSpace(r.Table) == "" {
		return DefaultTable
	}
	return r.Table
}

// Render returns the template output when a usable template is found and the
// built-in script otherwise.
func (r Renderer) Render(cs []checks.Check) Script {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	name := r.Name
	if name == "" {
		name = DefaultTemplateName
	}
	if path, ok := utils.FindTemplate(r.Dirs, name); ok {
		text, err := r.renderFile(path, cs)
		if err == nil {
			return Script{Text: text, Source: SourceTemplate, Path: path}
		}
		log.Warn("sql template unusable, using fallback", zap.String("path", path), zap.Error(err))
	} else {
		log.Info("sql template not found, using fallback", zap.String("name", name))
	}
	return Script{Text: r.Fallback(cs), Source: SourceFallback}
}

func (r Renderer) renderFile(path string, cs []checks.Check) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	tmpl, err := template.New(filepath.Base(path)).Funcs(r.funcs()).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var sb strings.Builder
	data := TemplateData{Checks: cs, Dialect: r.Dialect, Table: r.table()}
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return sb.String(), nil
}

func (r Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"regex": func(column, pattern string) string {
			return RegexPredicate(r.Dialect, column, pattern)
		},
		"quote": func(name string) string {
			return QuoteIdent(r.Dialect, name)
		},
		"literal": Literal,
		"oneLine": oneLine,
	}
}

// Fallback is the built-in script: one counting SELECT per check, in input order.
func (r Renderer) Fallback(cs []checks.Check) string {
	lines := []string{"-- Data Quality Checks for " + r.Dialect.String(), ""}
	table := r.table()
	for i, c := range cs {
		cond := strings.TrimSpace(c.SQLCondition)
		if cond == "" {
			cond = checks.DefaultSQLCondition
		}
		lines = append(lines,
			fmt.Sprintf("-- Check %d: %s", i+1, oneLine(c.Description)),
			fmt.Sprintf("SELECT %s as check_type,", Literal(c.CheckType)),
			fmt.Sprintf("       %s as column_name,", Literal(c.Column)),
			"       COUNT(*) as failed_records",
			"FROM "+table,
			fmt.Sprintf("WHERE NOT (%s);", cond),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// oneLine keeps a description from breaking out of its comment line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
