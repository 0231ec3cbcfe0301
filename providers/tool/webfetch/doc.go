// Package webfetch provides a tool that downloads a web page and returns its
// content as Markdown, converted with html-to-markdown.
//
// Partial URLs get an https:// prefix, redirects are followed up to a limit,
// and bodies larger than the configured maximum are truncated and flagged.
package webfetch
