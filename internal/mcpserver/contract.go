package mcpserver

// CardFormatContract describes the card model that LLM consumers should
// follow when creating or updating cards.
const CardFormatContract = `# Notebook Card Format Contract

Every card stored in the notebook is a plain file whose shape is driven
by its card type template.

## Card types

- ` + "`" + `note` + "`" + ` – Markdown note. File ` + "`" + `<slug>.note.md` + "`" + `: YAML header between
  ` + "`" + `---` + "`" + ` fences, then the Markdown body.
- ` + "`" + `bookmark` + "`" + ` – saved link. File ` + "`" + `<slug>.bookmark.yaml` + "`" + `: one YAML
  mapping; the ` + "`" + `url` + "`" + ` field is required.
- ` + "`" + `code` + "`" + ` – runnable snippet. File ` + "`" + `<slug>.card.py` + "`" + `: a ` + "`" + `# ` + "`" + `-commented
  YAML header, then the source code. Rendered output lives in a sibling
  ` + "`" + `<slug>.output.html` + "`" + ` companion file.
- ` + "`" + `image` + "`" + ` – annotated image. File ` + "`" + `<slug>.image.md` + "`" + `: YAML header with
  an ` + "`" + `src` + "`" + ` field pointing into ` + "`" + `/assets/` + "`" + `, then a Markdown caption.

## Structure of a note card

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED - display name everywhere
created: 2025-01-15T10:00:00Z      # OPTIONAL - set automatically on create
order: "1.2"                       # OPTIONAL - dotted position in section
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other cards by title, id or path.
Use [[target|alias]] for display text that differs from the target.
` + "```" + `

## Rules

1. **Create cards through the ` + "`" + `create_card` + "`" + ` tool**, never by guessing
   file names: the engine derives the filename from the title and
   assigns the card id.
2. **The ` + "`" + `title` + "`" + ` field is required** for every card type.
3. **Sections are top-level directories.** Dot-prefixed directories and
   ` + "`" + `assets/` + "`" + ` are reserved and hold no cards.
4. **Unknown fields are preserved**, so extra metadata may be added
   freely as YAML header entries.
5. **Encoding** is UTF-8 with a trailing newline.
6. **Assets** live in the shared ` + "`" + `assets/` + "`" + ` directory and are referenced
   with absolute paths: ` + "`" + `![description](/assets/filename.png)` + "`" + `.
`
