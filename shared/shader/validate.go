package shader

import (
	"strings"

	"github.com/forge-ai/shaderforge/shared/llm"
)

// ForbiddenKeyword may not appear anywhere in generated code. The match is a
// case-sensitive substring test, so identifiers such as "somewhile" and
// comments mentioning the word are rejected too. for loops are not checked.
const ForbiddenKeyword = "while"

const whileRejected = "Generated code contains 'while' loop which is not allowed"

// Validate reports an *llm.APIError when code contains ForbiddenKeyword.
func Validate(code string) error {
	if strings.Contains(code, ForbiddenKeyword) {
		return &llm.APIError{Msg: whileRejected}
	}
	return nil
}
