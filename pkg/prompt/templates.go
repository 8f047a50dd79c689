package prompt

// Template fragments for prompt composition. These are assembled by the
// Builder; no template engine is involved, only string substitution.

const systemNarrator = `You are the narrator of an interactive children's adventure story.
Write vivid, warm, age-appropriate prose in second person ("you"). Keep
paragraphs short (three to five sentences) and separate them with blank
lines. Never address the reader as a reader; they are the protagonist.`

const chapterChoicesInstruction = `End the chapter with exactly three choices inside a <choices> block,
one per line, each starting with "A) ", "B) ", or "C) ". The choices must
be meaningfully different paths, not restatements. Example:

<choices>
A) Follow the lantern-lit path deeper into the trees.
B) Climb the mossy stairs toward the sound of bells.
C) Wait quietly and watch who tends the lanterns.
</choices>

Do not add any text after the closing </choices> tag.`

const agencyChoicesInstruction = `This is the first chapter. End it at a moment of decision where the
protagonist is offered three gifts, one per line below. Present each gift
as one of the three choices, keeping its name and bracketed visual details
verbatim in the choice text:`

const lessonInstruction = `This chapter weaves an educational question into the story. A character
or situation must pose the following question to the protagonist, quoted
VERBATIM, exactly as written here including punctuation:`

const lessonNoChoicesInstruction = `Do not write a <choices> block. The question's answer options are the
choices; end the chapter immediately after the question is posed.`

const reflectInstruction = `The previous chapter posed an educational question and the protagonist
answered. This chapter is a narrative reflection: through story (not
quizzing), let the protagonist see why the correct answer holds, then
return to the adventure.`

const conclusionInstruction = `This is the final chapter. Resolve the adventure completely: every open
thread closes, the agency chosen in Chapter 1 plays a visible part, and
the protagonist returns changed. Do not write a <choices> block and do not
pose any question.`

const summaryTemplate = `Summarize the following adventure chapter in two or three sentences,
preserving what the protagonist chose and why it mattered. Also produce a
short evocative chapter title (at most eight words).

Respond with JSON only, in this exact shape:
{"title": "...", "summary": "..."}`

const visualUpdateTemplate = `Extract every named character that appears in the chapter below and
write a one-sentence visual description for each, suitable for an
illustrator. Refine descriptions of previously known characters if the
chapter adds visual detail; otherwise repeat the known description.

Respond with JSON only: an object mapping character name to description.`

const imageSceneTemplate = `Identify the single most visually striking moment of the chapter below.
Describe the scene in at most two sentences of concrete visual detail:
who is present, where they are, and what is happening. Respond with the
description only, no preamble.`

const imageSynthesisTemplate = `Compose a single image-generation prompt for a storybook illustration.
Merge the scene, the protagonist's appearance, their chosen agency, and
any known character visuals into one coherent instruction of at most 80
words. Style: painterly children's storybook illustration, no text, no
frames. Respond with the prompt only.`

const reformatInstruction = `Rewrite the following chapter text with proper paragraph structure:
short paragraphs of three to five sentences separated by blank lines.
Preserve the wording, the order of events, and any <choices> block
exactly. Respond with the rewritten text only.`
