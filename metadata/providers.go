package metadata

import (
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/shellboxhq/shellbox/metadata/aws"
	"github.com/shellboxhq/shellbox/metadata/gcp"
	"github.com/shellboxhq/shellbox/utils"
)

// GenerateCloudMetadataRetriever tries to identify the current cloud provider
// the instance is running in by pinging the metadata endpoints. It tries to be
// smart about this by pinging the endpoints in order of provider adoption so that
// the most used provider is first. Unless there is need for creating a retriever
// for a specific provider, this function should be used to generate a new metadata
// retriever instead of directly instanciating a new metadata retriever. If no
// provider endpoint responds (e.g. on a localdev host) an error is returned and
// CloudMetadata is left unset; callers must not use CloudMetadata in that case.
func GenerateCloudMetadataRetriever() error {
	httpClient := http.Client{
		Timeout: 1 * time.Second,
	}

	// The current number of providers supported.
	// This is the number of responses we expect on
	// the provider select.
	const supportedProviders = 2

	var (
		awsChan = make(chan error)
		gcpChan = make(chan error)
	)

	// Try to ping the AWS metadata endpoint
	go func() {
		resourceToPing := "instance-id"
		url, err := url.Parse(aws.EndpointBase)
		if err != nil {
			awsChan <- utils.MakeError("failed to parse metadata endpoint URL: %s", err)
			return
		}
		url.Path = path.Join("latest", "meta-data", resourceToPing)
		resp, err := httpClient.Get(url.String())
		if err != nil {
			awsChan <- err
			return
		}
		if resp.StatusCode != http.StatusOK {
			err = utils.MakeError("did not get a 200 status code")
		}

		awsChan <- err
	}()

	// Try to ping the GCP metadata endpoint
	go func() {
		resourceToPing := "id"
		url, err := url.Parse(gcp.EndpointBase)
		if err != nil {
			gcpChan <- utils.MakeError("failed to parse metadata endpoint URL: %s", err)
			return
		}
		url.Path = path.Join(url.Path, resourceToPing)
		req, err := http.NewRequest(http.MethodGet, url.String(), nil)
		if err != nil {
			gcpChan <- utils.MakeError("failed to create request for GCP endpoint: %s", err)
			return
		}

		// Add necessary headers for GCP and send the request
		req.Header.Add("Metadata-Flavor", "Google")
		resp, err := httpClient.Do(req)
		if err != nil {
			gcpChan <- err
			return
		}

		if resp.StatusCode != http.StatusOK {
			err = utils.MakeError("did not get a 200 status code")
		}

		gcpChan <- err
	}()

	// This select will block until any request to the cloud providers
	// metadata endpoint (or an error) completes. This way the console
	// service can "know" on which cloud provider it is running and start
	// querying for the relevant metadata.

	var awsErr, gcpErr error
	for i := 0; i < supportedProviders; i++ {
		select {
		case err := <-awsChan:
			if err == nil {
				CloudMetadata = &aws.Metadata{}
			} else {
				awsErr = err
			}
		case err := <-gcpChan:
			if err == nil {
				CloudMetadata = &gcp.Metadata{}
			} else {
				gcpErr = err
			}
		}
	}

	if CloudMetadata == nil {
		return utils.MakeError("no cloud provider metadata endpoint responded (aws: %s, gcp: %s)", awsErr, gcpErr)
	}

	return nil
}
