// Package cost turns token usage into money.
//
// [ModelPrice] holds per-million-token rates for one model and prices an
// [ai.Usage]. A [Table] maps provider/model keys to prices, and [Summarize]
// prices every step of an agent run, adding per-call tool prices. [Tracker]
// does the same incrementally from an agent OnStep hook.
package cost
