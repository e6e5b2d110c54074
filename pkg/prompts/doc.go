// Package prompts renders chat prompts from Go text templates.
//
// Templates have the sprig function library available, and
// the default SQL conversion and clause extraction templates are embedded.
package prompts
