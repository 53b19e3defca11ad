package mcpserver

// FrontMatterFormat describes the document format the build accepts, for
// LLM consumers drafting or reviewing posts.
const FrontMatterFormat = `# quire document format

A document is a text file whose path (minus extension) is its identity,
for example ` + "`2014-06-12-exceptions-vs-error-codes.html`" + `.

` + "```" + `
---
layout: post                  # must name a configured layout
title: "Exceptions vs error codes"
description: Short summary
tag: cpp                      # or tags: [cpp, errors]
date: 2014-06-12              # optional; defaults to the path's date prefix
permalink: /custom/url/       # optional; overrides the computed public path
published: true               # false keeps the document out of the output
---
Body text. Link another post with {% post_url 2014-06-19-avoiding-ambiguity-raw-pointers %}.
` + "```" + `

Rules:

1. The opening ` + "`---`" + ` must be the first line and must be closed.
2. Without front matter the whole file is body and gets the default layout.
3. A ` + "`post_url`" + ` fragment is matched against document paths: an exact path
   wins, otherwise a path ending in the fragment. Exactly one document must
   match or the whole build fails.
4. Unknown keys are kept as extra metadata unless the site runs in strict mode.
`
