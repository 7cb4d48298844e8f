package shader

import (
	"fmt"
	"strings"
)

const (
	exampleVertex   = "attribute vec2 position;\n void main() {\n gl_Position = vec4(position, 0.0, 1.0);\n}\n"
	exampleFragment = " uniform highp float u_time;\n uniform highp vec2 u_resolution; void main() {\n  gl_FragColor = vec4(1.0, 0.0, 0.0, 1.0);\n}\n"

	closingLine           = "no 'here is your code' type of statements , just and just the code"
	vertexClosingIndent   = 8
	fragmentClosingIndent = 9
)

// VertexPrompt builds the instruction sent for a vertex shader.
func VertexPrompt(description string) string {
	var sb strings.Builder

	sb.WriteString("Generate a simple WebGL vertex shader code, written in GLSL ES. ")
	sb.WriteString("The shader must have an input attribute named `position` of type `vec2`. ")
	sb.WriteString("The shader should also have a `main` function which sets the `gl_Position` correctly, ")
	sb.WriteString("this can be set directly as `gl_Position = vec4(position, 0.0, 1.0);`. ")
	sb.WriteString("Use `attribute` storage qualifier for the `position` input attribute. ")
	sb.WriteString("Do not use any variable names starting with `gl_`. ")
	sb.WriteString("Do not use any for loops or while loops in the generated code. ")
	sb.WriteString("Do not give extra comments or any ``` delimiters, just the raw shader code. ")
	sb.WriteString(fmt.Sprintf("Generate a vertex shader that does - %s. ", description))
	sb.WriteString("Here is an example shader: ```glsl\n" + exampleVertex + "```")
	writeClosing(&sb, vertexClosingIndent)
	return sb.String()
}

// FragmentPrompt builds the instruction sent for a fragment shader that
// complements vertexCode. vertexCode is embedded verbatim.
func FragmentPrompt(vertexCode, description string) string {
	var sb strings.Builder

	sb.WriteString("Generate a simple WebGL fragment shader code in GLSL ES, that complements the following vertex shader: \n")
	sb.WriteString("```glsl\n" + vertexCode + "\n```\n. ")
	sb.WriteString("The fragment shader must use a uniform `u_time` of type `float` and `u_resolution` of type `vec2`. ")
	sb.WriteString("The fragment shader should also have a main function that sets `gl_FragColor` correctly, ")
	sb.WriteString("use `gl_FragColor = vec4(1.0, 0.0, 0.0, 1.0);` as a basic example. ")
	sb.WriteString("Do not use any variable names starting with `gl_` use `gl_FragColor` as the fragment color output. ")
	sb.WriteString("Use the storage qualifier `uniform` for `u_time` and `u_resolution`, ")
	sb.WriteString("and also add the `highp` precision qualifier to `float` types and `vec2` types. ")
	sb.WriteString("Do not use any for loops or while loops in the generated code. ")
	sb.WriteString("Do not give extra comments or any ``` delimiters, just the raw shader code. ")
	sb.WriteString(fmt.Sprintf("Create a fragment shader that does - %s. ", description))
	sb.WriteString("Here is an example shader: ```glsl\n" + exampleFragment + "```")
	writeClosing(&sb, fragmentClosingIndent)
	return sb.String()
}

// writeClosing appends the final two lines. The second line keeps the
// leading spaces the model has always been sent.
func writeClosing(sb *strings.Builder, indent int) {
	sb.WriteString("Ensure no extra punctuations, and no extra messages other than the shader code.\n")
	sb.WriteString(strings.Repeat(" ", indent))
	sb.WriteString(closingLine)
}
