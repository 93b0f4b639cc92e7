// File: internal/mocks/mocks_test.go
package mocks_test

import (
	"github.com/xkilldash9x/middleman/internal/autofill"
	"github.com/xkilldash9x/middleman/internal/mocks"
	"github.com/xkilldash9x/middleman/internal/page"
)

var (
	_ page.Page         = (*mocks.MockPage)(nil)
	_ page.Element      = (*mocks.MockElement)(nil)
	_ autofill.Prompter = (*mocks.MockPrompter)(nil)
)
