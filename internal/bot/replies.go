package bot

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Replies holds every fixed text the bot sends.
type Replies struct {
	DownloadUsage      string `yaml:"downloadUsage"`
	DownloadCaption    string `yaml:"downloadCaption"`
	DownloadFailed     string `yaml:"downloadFailed"`
	StickerInstruction string `yaml:"stickerInstruction"`
	StickerFailed      string `yaml:"stickerFailed"`
	StickerCaption     string `yaml:"stickerCaption"`
	TagAllNotGroup     string `yaml:"tagAllNotGroup"`
	TagAllHeader       string `yaml:"tagAllHeader"` // must not contain '@'
	ListFilesEmpty     string `yaml:"listFilesEmpty"`
	ViewOnceSaved      string `yaml:"viewOnceSaved"`
	Greeting           string `yaml:"greeting"`
	Help               string `yaml:"help"`
}

func DefaultReplies() Replies {
	return Replies{
		DownloadUsage:      "Utilisation : !dl <url>",
		DownloadCaption:    "Voici votre fichier 📥",
		DownloadFailed:     "Échec du téléchargement. Vérifiez le lien et réessayez.",
		StickerInstruction: "Répondez à un sticker avec !sticker2img pour le convertir en image.",
		StickerFailed:      "Impossible de récupérer ce sticker.",
		StickerCaption:     "Voici votre sticker en image 🖼️",
		TagAllNotGroup:     "Cette commande ne fonctionne que dans un groupe.",
		TagAllHeader:       "📢 Attention tout le monde !",
		ListFilesEmpty:     "Aucun fichier enregistré.",
		ViewOnceSaved:      "Média à vue unique enregistré ✅",
		Greeting:           "Bonjour 👋 Tapez !help pour voir ce que je sais faire.",
		Help: `Commandes disponibles :
!dl <url> : télécharge un fichier et vous le renvoie
!sticker2img : convertit un sticker en image (répondez au sticker)
!tagall : mentionne tous les membres du groupe
!listfiles : liste les fichiers enregistrés
!help : affiche cette aide
Les images, vidéos, audios, stickers et médias à vue unique sont enregistrés automatiquement.`,
	}
}

// LoadReplies reads YAML overrides from path on top of DefaultReplies.
// An empty path returns the defaults.
func LoadReplies(path string) (Replies, error) {
	r := DefaultReplies()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read replies file: %w", err)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return DefaultReplies(), fmt.Errorf("parse replies file %s: %w", path, err)
	}
	if strings.Contains(r.TagAllHeader, "@") {
		return DefaultReplies(), fmt.Errorf("replies file %s: tagAllHeader must not contain '@'", path)
	}
	return r, nil
}
