package story

import "github.com/DesmondChoy/odyssey/pkg/models"

// phaseGuidance maps each storytelling phase to the choice-shaping
// guidance injected into chapter prompts. Fixed table; never mutated.
var phaseGuidance = map[models.StorytellingPhase]string{
	models.PhaseExposition: "Establish the world and the protagonist's ordinary rhythm. " +
		"Choices should be invitations: low-stakes paths that reveal character and set the hook.",
	models.PhaseRising: "Complications are surfacing. Choices should carry visible trade-offs " +
		"and pull the protagonist deeper into the unfolding problem.",
	models.PhaseTrials: "The protagonist is tested. Choices should be hard calls between " +
		"competing goods, each exercising something learned earlier in the journey.",
	models.PhaseClimax: "The central conflict comes to a head. Choices should be decisive and " +
		"irreversible in tone, each a genuinely different way to face the moment.",
	models.PhaseReturn: "The journey resolves. No choices remain; close every open thread and " +
		"reflect the change the protagonist carries home.",
}

// PhaseGuidance returns the prompt guidance for a phase.
func PhaseGuidance(phase models.StorytellingPhase) string {
	return phaseGuidance[phase]
}

// sensoryMoods vary the sensory emphasis of image-synthesis prompts by
// phase, so consecutive chapter images do not flatten into one look.
var sensoryMoods = map[models.StorytellingPhase]string{
	models.PhaseExposition: "soft morning light, warm and inviting, gentle detail",
	models.PhaseRising:     "lengthening shadows, saturated colors, a sense of motion",
	models.PhaseTrials:     "dramatic contrast, wind-stirred, charged atmosphere",
	models.PhaseClimax:     "intense light and dark, vivid, everything in sharp focus",
	models.PhaseReturn:     "golden-hour calm, settled, quietly triumphant",
}

// SensoryMood returns the image-prompt mood line for a phase.
func SensoryMood(phase models.StorytellingPhase) string {
	return sensoryMoods[phase]
}
