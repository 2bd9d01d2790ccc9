package content

// FallbackDocument is indexed when the content source is not configured or
// returns too little content.
const FallbackDocument = `# Baptiste Leroux - Alpa Stratégie

## About Baptiste
Baptiste Leroux is an experienced IT leadership consultant with over 20 years of international experience in digital transformation, IT governance, and performance delivery.

### Key Experience
- Founded and scaled StarTechUp Inc. from 4 to 50+ people, generating $5M+ in revenue
- 11 years managing offshore operations of 50 people in Asia
- Delivered 50+ SaaS solutions across finance, insurance, IoT, and B2C platforms
- Proven track record in CTO/CPTO interim roles and PMO setup

### Core Services
1. **IT Strategy & Executive Leadership**: Technology roadmaps, digital transformation programs, interim CTO/CPTO services
2. **PMO & Project Governance**: PMO framework design, portfolio management, resource allocation
3. **SaaS Product Development**: Multi-tenant architecture, industry-agnostic product development, MVP to enterprise scaling
4. **Global Delivery & Offshoring**: Offshore team setup, cultural bridge management, international coordination
5. **Digital Transformation**: Cloud migration strategies, agile transformation, modern architecture implementation

### Starter Packages
- **IT Leadership Assessment** (3 days, €3,000-4,000): Organization maturity assessment, quick wins identification
- **Offshoring Strategy & Setup** (5 days, €4,500-6,000): Build vs offshore framework, vendor selection, team setup
- **SaaS Product Strategy Sprint** (4 days, €3,500-4,500): Architecture assessment, scaling bottlenecks, growth roadmap
- **PMO Setup & Governance** (5 days, €4,000-5,500): PMO framework design, project portfolio assessment
- **Digital Transformation Readiness** (4 days, €3,500-4,500): Maturity assessment, technology roadmap, quick wins
- **Global Delivery Model Design** (6 days, €5,000-6,500): Delivery model assessment, global team structure

### Contact
Based in Paris, France. Available for projects across Europe.
LinkedIn: Connect for consulting inquiries`
