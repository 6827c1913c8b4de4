package observability

const (
	OperationKindAttribute = "storefront.graphql.operation.kind"
	OperationNameAttribute = "storefront.graphql.operation.name"
	OutcomeStatusAttribute = "storefront.outcome.status"
	ErrorKindAttribute     = "storefront.error.kind"

	SuccessStatus = "success"
	FailureStatus = "failure"
)

func SuccessOrFailureStatus(succeeded bool) string {
	if succeeded {
		return SuccessStatus
	}
	return FailureStatus
}
