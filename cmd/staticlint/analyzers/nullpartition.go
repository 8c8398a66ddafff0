// Package analyzers содержит собственные анализаторы staticlint.
package analyzers

import (
	"go/ast"
	"go/token"
	"regexp"
	"strconv"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

var nullPartition = regexp.MustCompile(`(?i)\bsubdomain\s+IS\s+(NOT\s+)?NULL\b`)

// NullPartition запрещает сравнение subdomain с NULL в SQL-литералах.
// Глобальное пространство имён хранится как пустая строка, а NULL ломает уникальность (subdomain, shortcode).
var NullPartition = &analysis.Analyzer{
	Name:     "nullpartition",
	Doc:      "запрещает условия subdomain IS NULL в SQL: глобальное пространство хранится как ''",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      runNullPartition,
}

func runNullPartition(pass *analysis.Pass) (interface{}, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	insp.Preorder([]ast.Node{(*ast.BasicLit)(nil)}, func(n ast.Node) {
		lit := n.(*ast.BasicLit)
		if lit.Kind != token.STRING {
			return
		}
		value, err := strconv.Unquote(lit.Value)
		if err != nil {
			return
		}
		if match := nullPartition.FindString(value); match != "" {
			pass.Reportf(lit.Pos(), "условие %q не находит глобальные ссылки, используйте subdomain = ''", match)
		}
	})
	return nil, nil
}
