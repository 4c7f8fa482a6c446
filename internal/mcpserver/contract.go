package mcpserver

// ArchiveFormatContract describes the archive layout and the version history
// of a render node, for LLM consumers reading documents through the tools.
const ArchiveFormatContract = `# Perthro Archive Format Contract

A Perthro archive is a directory of render nodes: one JSON document per
documentation page, together with a navigator index and media assets.

## Layout

` + "```" + `
data/documentation/fazz.json        # render node for /documentation/fazz
data/documentation/fazz/boo.json    # render node for /documentation/fazz/boo
index/index.json                    # navigator index with per-language API change ledgers
images/  videos/  downloads/        # media referenced by render nodes
` + "```" + `

Documentation URLs map to archive paths by prefixing ` + "`" + `data/` + "`" + ` and appending
` + "`" + `.json` + "`" + `. Tools accept either form. Files may also be stored zstd-compressed
as ` + "`" + `.json.zst` + "`" + `; this is transparent to readers.

## Versions

A render node always holds its **current** version. Older versions are encoded
as a chain of JSON Patch (RFC 6902) documents under the top-level ` + "`" + `versions` + "`" + `
array, newest first:

` + "```" + `json
{
  "metadata": {"title": "Fazz", "version": {"displayName": "v3"}},
  "versions": [
    {"version": {"displayName": "v2"}, "patch": [{"op": "replace", "path": "/metadata/title", "value": "Fazz (beta)"}]},
    {"version": {"displayName": "v1"}, "patch": [{"op": "remove", "path": "/topicSections"}]}
  ]
}
` + "```" + `

## Rules

1. **The current version** is ` + "`" + `metadata.version.displayName` + "`" + `. Asking for it, or
   omitting the version, returns the document unchanged.
2. **Reconstruction** applies every patch from the first entry down to the
   requested one, in order. Patch N assumes patches 0..N-1 already ran.
3. **Unknown versions** return the current document; the result's ` + "`" + `outcome` + "`" + ` is
   ` + "`" + `unknown_version` + "`" + `. This is not an error.
4. **Outcomes** are ` + "`" + `head` + "`" + `, ` + "`" + `patched` + "`" + `, ` + "`" + `unknown_version` + "`" + ` and ` + "`" + `unversioned` + "`" + `
   (no history at all).
5. **A history that cannot be replayed** is reported as an error naming the
   version, the entry index and the failing operation.
6. **Version names** are opaque display names. Do not assume they sort.

## API changes

The navigator index carries, per interface language (` + "`" + `swift` + "`" + `, ` + "`" + `occ` + "`" + `), a
ledger of which versions ` + "`" + `added` + "`" + ` or ` + "`" + `modified` + "`" + ` the API at each URL.
` + "`" + `get_api_changes` + "`" + ` maps those ledger entries onto the ` + "`" + `references` + "`" + ` of a document,
keyed by reference identifier:

` + "```" + `json
{"doc://org.example/documentation/Fazz/Boo": {"change": "added"}}
` + "```" + `
`
