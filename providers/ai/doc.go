// Package ai defines the provider-neutral vocabulary shared by every adapter
// and by the agent runtime: the prompt model ([Message], [Part]), the stream
// part union ([StreamPart]) that adapters emit, the [Adapter] contract, the
// unified [FinishReason] and [Usage] types, and the error taxonomy ([Error]).
//
// Adapters (see the openai and anthropic subpackages) translate these types
// to and from a provider wire format. Nothing in this package performs I/O.
//
// Streams are exposed as [PartStream], a lazy iter.Seq2 sequence that can be
// consumed pull-style with Iter or push-style with Each.
package ai
