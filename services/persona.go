package services

import "speaktoheaven/models"

// PersonaCatalog is the read-only persona table loaded at startup.
type PersonaCatalog interface {
	Get(id string) (models.Persona, bool)
	List() []models.Persona
}
