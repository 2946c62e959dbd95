package validation

// QAReportValidator enforces the "qa" segment contract: the submission must
// reference a test report in its metadata so downstream consumers can link
// the verdict to evidence.
type QAReportValidator struct{}

func (QAReportValidator) Supports(segment string) bool {
	return segment == "qa"
}

func (QAReportValidator) Validate(ctx Context) error {
	if _, ok := ctx.Metadata["testReport"]; ok {
		return nil
	}
	for _, l := range ctx.Links {
		if l.Title == "testReport" {
			return nil
		}
	}
	return &Error{
		Code:    "validation.qa.report_required",
		Message: "qa submissions need a testReport metadata entry or link",
		Field:   "metadata.testReport",
	}
}
