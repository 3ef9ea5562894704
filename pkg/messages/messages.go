package messages

import (
	"fmt"
	"strings"

	"selfiebot/pkg/domain"
)

// Catalog holds every user-facing text. Zero fields fall back to Default.
type Catalog struct {
	TopMenu        string            `yaml:"topMenu"`
	MainMenu       string            `yaml:"mainMenu"`
	RealismMenu    string            `yaml:"realismMenu"`
	StylizeMenu    string            `yaml:"stylizeMenu"`
	SceneMenu      string            `yaml:"sceneMenu"`
	ResultMore     string            `yaml:"resultMore"`
	ResultCaption  string            `yaml:"resultCaption"`
	ResultListHint string            `yaml:"resultListHint"`
	AskUpload      string            `yaml:"askUpload"`
	AskOwnOption   string            `yaml:"askOwnOption"`
	AskEnglish     string            `yaml:"askEnglish"`
	NotHuman       string            `yaml:"notHuman"`
	Indecent       string            `yaml:"indecent"`
	Processing     string            `yaml:"processing"`
	Finished       string            `yaml:"finished"`
	Deleted        string            `yaml:"deleted"`
	DownloadFailed string            `yaml:"downloadFailed"`
	EditFailed     string            `yaml:"editFailed"`
	EmptyGallery   string            `yaml:"emptyGallery"`
	ListHint       string            `yaml:"listHint"` // %d is replaced by the total file count
	ListEndHint    string            `yaml:"listEndHint"`
	Redirects      map[string]string `yaml:"redirects"` // top-menu digit -> message
	// Examples are sent after a detail letter is picked, keyed by mode name then letter.
	Examples map[string]map[string]string `yaml:"examples"`
}

// Default returns the built-in English texts.
func Default() Catalog {
	return Catalog{
		TopMenu:        "Choose a bot:\n1. Selfie editor\n2. Animated selfie\n3. Selfie stickers",
		MainMenu:       "What to do with a selfie?\n1. Edit while maintaining realism\n2. Stylize (artistically)\n3. Add a scene or effect",
		RealismMenu:    "Select the type of changes:\n a) Glasses, jewelry, tattoo\n b) Makeup, emotions\n c) Hair, beard, mustache\n d) Clothes\n e) Background and objects\n f) Enter your own option",
		StylizeMenu:    "Select style:\n a) Anime/Cartoon/Comic\n b) Painting: Watercolor, Oil, Pencil\n c) Full Art Portrait\n d) Fantasy/Sci-Fi Character\n e) Change Age, Gender, Ethnicity\n f) Enter your own",
		SceneMenu:      "Select:\n a) Change facial expression (smile, anger...)\n b) Add atmosphere (rain, sunset...)\n c) Create scene (mage, pilot, etc.)\n d) Enter your own",
		ResultMore:     "Here is the result. Do you want to change anything else?\n1. Add another effect to the result\n2. Add an effect to the original photo\n3. Finish",
		ResultCaption:  "Here is the result.",
		ResultListHint: `Write "list" to see all your photos.`,
		AskUpload:      "Upload a selfie.",
		AskOwnOption:   "Please describe in English.",
		AskEnglish:     "Please write your request in English.",
		NotHuman:       "send a photo with a person's face",
		Indecent:       "Please send a photo within the bounds of decency.",
		Processing:     "Processing… I will send the result soon.",
		Finished:       `Done! Send a new selfie or write "menu" to start over.`,
		Deleted:        "All your data has been deleted.",
		DownloadFailed: "Could not download the image. Please resend.",
		EditFailed:     "Sorry, the image could not be generated. Please try again.",
		EmptyGallery:   "You have no photos yet. Upload a selfie.",
		ListHint:       "Write \"+\" to upload more, write \"-\" to delete all your photos from the server, there are currently %d of them.\nWrite \"end\" to upload new photo\nWrite \"delete\" to delete all your profile",
		ListEndHint:    "Write \"end\" to Menu\nWrite \"del\" to delete all your profile",
		Redirects: map[string]string{
			"2": "Animated selfies are made by our sister bot. Please write to it directly.",
			"3": "Selfie stickers are made by our sister bot. Please write to it directly.",
		},
	}
}

// WithDefaults fills empty fields from Default.
func (c Catalog) WithDefaults() Catalog {
	d := Default()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&c.TopMenu, d.TopMenu)
	fill(&c.MainMenu, d.MainMenu)
	fill(&c.RealismMenu, d.RealismMenu)
	fill(&c.StylizeMenu, d.StylizeMenu)
	fill(&c.SceneMenu, d.SceneMenu)
	fill(&c.ResultMore, d.ResultMore)
	fill(&c.ResultCaption, d.ResultCaption)
	fill(&c.ResultListHint, d.ResultListHint)
	fill(&c.AskUpload, d.AskUpload)
	fill(&c.AskOwnOption, d.AskOwnOption)
	fill(&c.AskEnglish, d.AskEnglish)
	fill(&c.NotHuman, d.NotHuman)
	fill(&c.Indecent, d.Indecent)
	fill(&c.Processing, d.Processing)
	fill(&c.Finished, d.Finished)
	fill(&c.Deleted, d.Deleted)
	fill(&c.DownloadFailed, d.DownloadFailed)
	fill(&c.EditFailed, d.EditFailed)
	fill(&c.EmptyGallery, d.EmptyGallery)
	fill(&c.ListHint, d.ListHint)
	fill(&c.ListEndHint, d.ListEndHint)
	redirects := make(map[string]string, len(d.Redirects))
	for k, v := range d.Redirects {
		redirects[k] = v
	}
	for k, v := range c.Redirects {
		if strings.TrimSpace(v) != "" {
			redirects[k] = v
		}
	}
	c.Redirects = redirects
	return c
}

// DetailMenu returns the lettered option list of a mode.
func (c Catalog) DetailMenu(mode domain.Mode) string {
	switch mode {
	case domain.ModeRealism:
		return c.RealismMenu
	case domain.ModeStylize:
		return c.StylizeMenu
	case domain.ModeScene:
		return c.SceneMenu
	default:
		return c.MainMenu
	}
}

// Example returns the configured example for a detail letter, or "".
func (c Catalog) Example(mode domain.Mode, letter string) string {
	return strings.TrimSpace(c.Examples[mode.String()][strings.ToLower(letter)])
}

// GalleryHint tells whether more files remain after a gallery page.
func (c Catalog) GalleryHint(more bool, total int) string {
	if !more {
		return c.ListEndHint
	}
	if strings.Contains(c.ListHint, "%d") {
		return fmt.Sprintf(c.ListHint, total)
	}
	return c.ListHint
}
