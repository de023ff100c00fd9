package vocabulary

import (
	"context"

	"github.com/symptom-triage-server/internal/domain"
)

// builtinSymptoms is the default catalogue. Names must not contain the
// filler words stripped by the normalizer, or they could never match.
var builtinSymptoms = []domain.SymptomEntry{
	// Cardiac
	{Name: "Chest pain", Weight: 70, Category: domain.CategoryCardiac},
	{Name: "Chest pressure", Weight: 70, Category: domain.CategoryCardiac},
	{Name: "Palpitations", Weight: 30, Category: domain.CategoryCardiac},
	{Name: "Irregular heartbeat", Weight: 35, Category: domain.CategoryCardiac},
	{Name: "Fainting", Weight: 45, Category: domain.CategoryCardiac},

	// Respiratory
	{Name: "Shortness of breath", Weight: 50, Category: domain.CategoryRespiratory},
	{Name: "Difficulty breathing", Weight: 60, Category: domain.CategoryRespiratory},
	{Name: "Wheezing", Weight: 25, Category: domain.CategoryRespiratory},
	{Name: "Cough", Weight: 10, Category: domain.CategoryRespiratory},
	{Name: "Coughing blood", Weight: 65, Category: domain.CategoryRespiratory},

	// Neurological
	{Name: "Fainting", Weight: 45, Category: domain.CategoryNeurological},
	{Name: "Headache", Weight: 15, Category: domain.CategoryNeurological},
	{Name: "Seizure", Weight: 70, Category: domain.CategoryNeurological},
	{Name: "Slurred speech", Weight: 60, Category: domain.CategoryNeurological},
	{Name: "Numbness", Weight: 40, Category: domain.CategoryNeurological},
	{Name: "Confusion", Weight: 35, Category: domain.CategoryNeurological},
	{Name: "Dizziness", Weight: 20, Category: domain.CategoryNeurological},

	// Gastrointestinal
	{Name: "Nausea", Weight: 10, Category: domain.CategoryGastrointestinal},
	{Name: "Vomiting", Weight: 15, Category: domain.CategoryGastrointestinal},
	{Name: "Diarrhea", Weight: 10, Category: domain.CategoryGastrointestinal},
	{Name: "Abdominal pain", Weight: 30, Category: domain.CategoryGastrointestinal},
	{Name: "Blood in stool", Weight: 55, Category: domain.CategoryGastrointestinal},

	// Infectious
	{Name: "Fever", Weight: 15, Category: domain.CategoryInfectious},
	{Name: "Chills", Weight: 10, Category: domain.CategoryInfectious},
	{Name: "Stiff neck", Weight: 30, Category: domain.CategoryInfectious},

	// Dermatological
	{Name: "Rash", Weight: 10, Category: domain.CategoryDermatological},
	{Name: "Itching", Weight: 5, Category: domain.CategoryDermatological},
	{Name: "Hives", Weight: 15, Category: domain.CategoryDermatological},
	{Name: "Swelling", Weight: 20, Category: domain.CategoryDermatological},

	// Musculoskeletal
	{Name: "Swelling", Weight: 20, Category: domain.CategoryMusculoskeletal},
	{Name: "Back pain", Weight: 15, Category: domain.CategoryMusculoskeletal},
	{Name: "Joint pain", Weight: 15, Category: domain.CategoryMusculoskeletal},

	// Mental health
	{Name: "Suicidal thoughts", Weight: 70, Category: domain.CategoryMentalHealth},
	{Name: "Panic attack", Weight: 30, Category: domain.CategoryMentalHealth},
	{Name: "Anxiety", Weight: 15, Category: domain.CategoryMentalHealth},
	{Name: "Insomnia", Weight: 10, Category: domain.CategoryMentalHealth},

	// General
	{Name: "Fatigue", Weight: 10, Category: domain.CategoryGeneral},
	{Name: "Weakness", Weight: 15, Category: domain.CategoryGeneral},
	{Name: "Sore throat", Weight: 10, Category: domain.CategoryGeneral},
	{Name: "Runny nose", Weight: 5, Category: domain.CategoryGeneral},
	{Name: "Sneezing", Weight: 5, Category: domain.CategoryGeneral},
}

// builtinRules capture co-occurrences that are more dangerous than the sum
// of their parts. Patterns run against normalized, lowercased text.
var builtinRules = []domain.RuleDefinition{
	{
		Pattern:  `(chest pain|chest pressure).*sweat`,
		Weight:   90,
		Category: domain.CategoryCardiac,
		Reason:   "Chest pain with sweating may indicate a heart attack",
	},
	{
		Pattern:  `(chest pain|chest pressure).*(shortness of breath|difficulty breathing)|(shortness of breath|difficulty breathing).*(chest pain|chest pressure)`,
		Weight:   85,
		Category: domain.CategoryCardiac,
		Reason:   "Chest pain with breathing difficulty may indicate a cardiac or pulmonary emergency",
	},
	{
		Pattern:  `(numbness|facial droop|weakness).*(slurred speech|confusion|vision loss)|(slurred speech|confusion).*(numbness|facial droop|weakness)`,
		Weight:   85,
		Category: domain.CategoryNeurological,
		Reason:   "Sudden neurological deficits together may indicate a stroke",
	},
	{
		Pattern:  `fever.*stiff neck|stiff neck.*fever`,
		Weight:   80,
		Category: domain.CategoryInfectious,
		Reason:   "Fever with a stiff neck may indicate meningitis",
	},
	{
		Pattern:  `suicid\w*.*\b(plan|pills|weapon|tonight)\b`,
		Weight:   90,
		Category: domain.CategoryMentalHealth,
		Reason:   "Suicidal thoughts with a plan require immediate intervention",
	},
	{
		Pattern:  `(hives|swelling|rash).*(difficulty breathing|shortness of breath|throat closing)`,
		Weight:   85,
		Category: domain.CategoryRespiratory,
		Reason:   "Swelling or hives with breathing difficulty may indicate anaphylaxis",
	},
	{
		Pattern:  `(severe|worst).*headache.*(vomit|confusion|stiff neck)`,
		Weight:   50,
		Category: domain.CategoryNeurological,
		Reason:   "Severe headache with vomiting or confusion needs prompt evaluation",
	},
	{
		Pattern:  `(vomiting|diarrhea).*(dizziness|fainting)`,
		Weight:   35,
		Category: domain.CategoryGastrointestinal,
		Reason:   "Vomiting or diarrhea with dizziness may indicate dehydration",
	},
	{
		Pattern:  `abdominal pain.*(fever|vomiting)`,
		Weight:   40,
		Category: domain.CategoryGastrointestinal,
		Reason:   "Abdominal pain with fever or vomiting may indicate appendicitis",
	},
	{
		Pattern:  `(fever|chills).*(cough|sore throat)`,
		Weight:   20,
		Category: domain.CategoryInfectious,
		Reason:   "Fever with respiratory symptoms suggests an infection",
	},
}

// BuiltinSymptoms returns a copy of the default catalogue.
func BuiltinSymptoms() []domain.SymptomEntry {
	return append([]domain.SymptomEntry(nil), builtinSymptoms...)
}

// BuiltinRules returns a copy of the default rule definitions.
func BuiltinRules() []domain.RuleDefinition {
	return append([]domain.RuleDefinition(nil), builtinRules...)
}

// Builtin compiles the default catalogue.
func Builtin() *Vocabulary {
	return MustCompile(builtinSymptoms, builtinRules)
}

// BuiltinSource serves the default catalogue through the VocabularySource
// interface.
type BuiltinSource struct{}

// LoadSymptoms implements domain.VocabularySource.
func (BuiltinSource) LoadSymptoms(ctx context.Context) ([]domain.SymptomEntry, error) {
	return BuiltinSymptoms(), nil
}

// LoadRules implements domain.VocabularySource.
func (BuiltinSource) LoadRules(ctx context.Context) ([]domain.RuleDefinition, error) {
	return BuiltinRules(), nil
}
