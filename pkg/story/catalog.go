// Package story holds the built-in narrative catalogs: story categories,
// the protagonist description pool, the agency catalog, and the
// phase-keyed choice guidance tables. All data is static; selection
// helpers are pure.
package story

import (
	"math/rand/v2"
	"strings"

	"github.com/DesmondChoy/odyssey/pkg/models"
)

// Category describes a selectable story setting.
type Category struct {
	ID          string
	Name        string
	Description string
}

// Categories is the built-in story setting catalog, keyed by id.
var Categories = map[string]Category{
	"enchanted_forest": {
		ID:   "enchanted_forest",
		Name: "Enchanted Forest",
		Description: "An ancient forest where the trees whisper secrets, " +
			"hidden glades glow with living light, and every path rearranges " +
			"itself when no one is watching.",
	},
	"circus_carnival": {
		ID:   "circus_carnival",
		Name: "Circus & Carnival Capers",
		Description: "A traveling circus where the big top never quite closes, " +
			"acrobats defy more than gravity, and the carnival games hide " +
			"genuine wonders behind their painted booths.",
	},
	"jade_mountain": {
		ID:   "jade_mountain",
		Name: "Jade Mountain",
		Description: "A mist-wrapped mountain of jade terraces and cloud " +
			"bridges, where stone guardians doze at the gates and the summit " +
			"is said to touch the land of the sky spirits.",
	},
	"festival_of_lights": {
		ID:   "festival_of_lights",
		Name: "Festival of Lights & Colors",
		Description: "A city mid-festival, its canals strung with floating " +
			"lanterns, its plazas bursting with colored powder, and its oldest " +
			"quarter hiding the workshop where the first lantern was lit.",
	},
}

// CategoryDescription returns the setting description for a category id,
// falling back to the raw id so an unknown category still yields a usable
// prompt.
func CategoryDescription(id string) string {
	if c, ok := Categories[id]; ok {
		return c.Description
	}
	return strings.ReplaceAll(id, "_", " ")
}

// protagonistPool is the fixed pool a protagonist description is drawn
// from at adventure creation. Immutable thereafter.
var protagonistPool = []string{
	"a curious explorer with a patched satchel, windswept hair, and boots that have seen a hundred trails",
	"a quick-witted inventor with ink-stained fingers, round goggles pushed up on their forehead, and a belt of odd tools",
	"a gentle storyteller with a long woven scarf, a pocketful of smooth river stones, and eyes that catch the light",
	"a brave young navigator with a brass compass on a cord, a weathered map case, and a grin that never quite fades",
}

// PickProtagonist selects a protagonist description from the fixed pool.
func PickProtagonist(rng *rand.Rand) string {
	if rng == nil {
		return protagonistPool[0]
	}
	return protagonistPool[rng.IntN(len(protagonistPool))]
}

// AgencyOption is one entry of the agency catalog. Name is the display
// name matched against Chapter-1 choice text; VisualDetails feed image
// synthesis.
type AgencyOption struct {
	Category      string
	Name          string
	VisualDetails string
}

// AgencyCatalog lists every agency the first chapter may offer, grouped
// under their categories.
var AgencyCatalog = []AgencyOption{
	{Category: "Gain a Special Ability", Name: "Element Bender", VisualDetails: "a swirling figure with hands sparking flames, splashing water, hurling pebbles, or summoning gusts"},
	{Category: "Gain a Special Ability", Name: "Animal Whisperer", VisualDetails: "a gentle figure ringed by birds, foxes, and deer leaning in to listen"},
	{Category: "Gain a Special Ability", Name: "Shadow Stepper", VisualDetails: "a half-silhouetted figure dissolving at the edges into drifting dusk"},
	{Category: "Take on a Companion", Name: "Clockwork Owl", VisualDetails: "a palm-sized brass owl with ticking gears visible through amber glass feathers"},
	{Category: "Take on a Companion", Name: "Ember Fox", VisualDetails: "a small fox whose fur flickers like banked coals, leaving faint warm pawprints"},
	{Category: "Take on a Companion", Name: "River Sprite", VisualDetails: "a knee-high water spirit that ripples with laughter and mirrors nearby colors"},
	{Category: "Choose a Profession", Name: "Star Cartographer", VisualDetails: "a figure draped in a cloak pinned with tiny glowing constellation charts"},
	{Category: "Choose a Profession", Name: "Dream Baker", VisualDetails: "a flour-dusted figure whose pastries trail faint wisps of remembered dreams"},
	{Category: "Choose a Profession", Name: "Song Weaver", VisualDetails: "a figure whose fingertips pull shimmering threads of melody from the air"},
	{Category: "Receive a Magical Artifact", Name: "Lantern of Echoes", VisualDetails: "a battered iron lantern whose flame replays glimpses of moments it has lit"},
	{Category: "Receive a Magical Artifact", Name: "Key of Many Doors", VisualDetails: "an ornate key that reshapes its teeth to fit whichever lock it faces"},
	{Category: "Receive a Magical Artifact", Name: "Cloak of Quiet", VisualDetails: "a dusk-gray cloak that hushes footsteps and softens the wearer's outline"},
}

// MatchAgency finds the catalog entry whose name appears in the chosen
// option text (case-insensitive). The Chapter-1 prompt renders options as
// "Name [visual details] (category)", so a substring match on the name
// is sufficient.
func MatchAgency(choiceText string) (models.Agency, bool) {
	lowered := strings.ToLower(choiceText)
	for _, opt := range AgencyCatalog {
		if strings.Contains(lowered, strings.ToLower(opt.Name)) {
			return models.Agency{
				Category:      opt.Category,
				Name:          opt.Name,
				VisualDetails: opt.VisualDetails,
				Description:   choiceText,
			}, true
		}
	}
	return models.Agency{}, false
}

// AgencyChoiceLines renders the catalog options offered in Chapter 1, one
// per category so the three narrative choices span distinct categories.
func AgencyChoiceLines(rng *rand.Rand) []string {
	byCategory := make(map[string][]AgencyOption)
	var order []string
	for _, opt := range AgencyCatalog {
		if _, ok := byCategory[opt.Category]; !ok {
			order = append(order, opt.Category)
		}
		byCategory[opt.Category] = append(byCategory[opt.Category], opt)
	}
	lines := make([]string, 0, len(order))
	for _, cat := range order {
		opts := byCategory[cat]
		pick := opts[0]
		if rng != nil {
			pick = opts[rng.IntN(len(opts))]
		}
		lines = append(lines, pick.Name+" ["+pick.VisualDetails+"] ("+cat+")")
	}
	return lines
}
