package resolution

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario state the resolution steps need.
type TestContext interface {
	SetActor(actor string)
	POST(path string, body interface{}) error
	StatusCode() int
	Body() []byte
	GetResponseField(field string) (interface{}, error)
	Remember(name, value string)
	Recall(name string) string
}

// RegisterSteps registers intake, review and calibration steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &resolutionSteps{tc: tc, people: map[string]person{}}

	ctx.Step(`^calibration is initialized$`, steps.calibrationInitialized)
	ctx.Step(`^a new person "([^"]*)"$`, steps.newPerson)
	ctx.Step(`^I submit "([^"]*)" as "([^"]*)"$`, steps.submit)
	ctx.Step(`^I submit "([^"]*)" with phone "([^"]*)" as "([^"]*)"$`, steps.submitWithPhone)
	ctx.Step(`^I accept submission "([^"]*)" creating master "([^"]*)"$`, steps.accept)
	ctx.Step(`^I merge submission "([^"]*)" into master "([^"]*)"$`, steps.merge)
	ctx.Step(`^the submission should have (\d+) "([^"]*)" candidates?$`, steps.candidatesShouldBe)
}

// person is a registrant whose name and birth date are random per scenario, so
// scenarios never block with masters left by earlier runs.
type person struct {
	name      string
	birthDate string
	region    string
}

type resolutionSteps struct {
	tc     TestContext
	people map[string]person
}

func (s *resolutionSteps) calibrationInitialized(ctx context.Context) error {
	if err := s.tc.POST("/calibration/initialize", map[string]interface{}{"confirm": true}); err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("initialize calibration: status %d: %s", s.tc.StatusCode(), s.tc.Body())
	}
	return nil
}

func (s *resolutionSteps) newPerson(ctx context.Context, alias string) error {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	word := func(p []byte) string {
		var sb strings.Builder
		for i, c := range p {
			ch := 'a' + rune(c%26)
			if i == 0 {
				ch -= 'a' - 'A'
			}
			sb.WriteRune(ch)
		}
		return sb.String()
	}
	s.people[alias] = person{
		name:      word(b[0:6]) + " " + word(b[6:14]),
		birthDate: fmt.Sprintf("19%02d-%02d-%02d", 40+int(b[14])%60, 1+int(b[15])%12, 1+int(b[14])%28),
		region:    "E2E-" + word(b[10:14]),
	}
	return nil
}

func (s *resolutionSteps) submit(ctx context.Context, alias, as string) error {
	return s.submitWithPhone(ctx, alias, "", as)
}

func (s *resolutionSteps) submitWithPhone(ctx context.Context, alias, phone, as string) error {
	p, ok := s.people[alias]
	if !ok {
		return fmt.Errorf("unknown person %q", alias)
	}
	body := map[string]interface{}{
		"full_name":  p.name,
		"birth_date": p.birthDate,
		"region":     p.region,
	}
	if phone != "" {
		body["phone"] = phone
	}
	if err := s.tc.POST("/submissions", body); err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("submit %s: status %d: %s", alias, s.tc.StatusCode(), s.tc.Body())
	}
	return s.rememberString("submission.id", as)
}

func (s *resolutionSteps) accept(ctx context.Context, submission, master string) error {
	if err := s.resolve(submission, map[string]interface{}{"decision": "accept"}); err != nil {
		return err
	}
	if s.tc.StatusCode() != 200 {
		return nil
	}
	return s.rememberString("master.id", master)
}

func (s *resolutionSteps) merge(ctx context.Context, submission, master string) error {
	target := s.tc.Recall(master)
	if target == "" {
		return fmt.Errorf("unknown master %q", master)
	}
	return s.resolve(submission, map[string]interface{}{"decision": "merge", "target_master_id": target})
}

func (s *resolutionSteps) resolve(submission string, body map[string]interface{}) error {
	subID := s.tc.Recall(submission)
	if subID == "" {
		return fmt.Errorf("unknown submission %q", submission)
	}
	return s.tc.POST("/submissions/"+subID+"/resolve", body)
}

func (s *resolutionSteps) candidatesShouldBe(ctx context.Context, count int, classification string) error {
	v, err := s.tc.GetResponseField("candidates")
	if err != nil {
		return err
	}
	list, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("candidates is not a list: %s", s.tc.Body())
	}
	n := 0
	for _, c := range list {
		if m, ok := c.(map[string]interface{}); ok && m["classification"] == classification {
			n++
		}
	}
	if n != count {
		return fmt.Errorf("expected %d %s candidates, got %d: %s", count, classification, n, s.tc.Body())
	}
	return nil
}

func (s *resolutionSteps) rememberString(field, name string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	str, ok := v.(string)
	if !ok {
		return fmt.Errorf("field %q is not a string", field)
	}
	s.tc.Remember(name, str)
	return nil
}
