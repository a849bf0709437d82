package synth

import "fmt"

// Demo patient names carry accents, apostrophes and hyphens so that sort
// layouts using {PatientName} exercise path normalisation.
var (
	demoFamilyNames = []string{
		"Müller-Schmidt", "O'Connor", "García-López", "Østergaard",
		"Çelik", "Škvorecký", "D'Agostino", "Björnsson",
	}
	demoGivenNames = []string{
		"Jean-Pierre", "Éléonore", "Søren", "María",
		"Łukasz", "Zoë", "Jürgen", "Hélène",
	}
)

// DemoPatientName returns the deterministic DICOM person name of the
// i-th demo patient, FAMILY^Given.
func DemoPatientName(i int) string {
	family := demoFamilyNames[i%len(demoFamilyNames)]
	given := demoGivenNames[(3*i+i/len(demoFamilyNames))%len(demoGivenNames)]
	if round := i / (len(demoFamilyNames) * len(demoGivenNames)); round > 0 {
		given = fmt.Sprintf("%s %d", given, round+1)
	}
	return family + "^" + given
}
